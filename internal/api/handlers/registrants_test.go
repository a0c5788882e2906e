package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campbase/server/internal/domain/settings"
)

func postRegister(t *testing.T, handler *RegistrantsHandler, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/registrants", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)
	return rec
}

func TestRegisterCreatesPendingRegistrant(t *testing.T) {
	env := newTestEnv()
	handler := NewRegistrantsHandler(env.registrantsSvc, "test")

	rec := postRegister(t, handler, map[string]string{
		"firstName": "<b>Somchai</b>",
		"lastName":  "Jaidee",
		"phone":     "081-234-5678",
		"email":     "Somchai@Example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp registrantPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Somchai", resp.FirstName)
	require.Equal(t, "0812345678", resp.Phone)
	require.Equal(t, "somchai@example.com", resp.Email)
	require.Equal(t, "pending", resp.Status)
	require.NotEmpty(t, resp.ID)
}

func TestRegisterRejectsBadEmail(t *testing.T) {
	env := newTestEnv()
	handler := NewRegistrantsHandler(env.registrantsSvc, "test")

	rec := postRegister(t, handler, map[string]string{
		"firstName": "Somchai",
		"lastName":  "Jaidee",
		"phone":     "0812345678",
		"email":     "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterClosedRegistration(t *testing.T) {
	env := newTestEnv()
	closed := false
	_, err := env.settingsSvc.Update(t.Context(), settings.UpdateParams{IsRegistrationOpen: &closed})
	require.NoError(t, err)
	handler := NewRegistrantsHandler(env.registrantsSvc, "test")

	rec := postRegister(t, handler, map[string]string{
		"firstName": "Somchai",
		"lastName":  "Jaidee",
		"phone":     "0812345678",
		"email":     "somchai@example.com",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterCapacityReached(t *testing.T) {
	env := newTestEnv()
	env.seedRegistrant("First", "Taken", "0800000001", "first@example.com")
	capacity := 1
	_, err := env.settingsSvc.Update(t.Context(), settings.UpdateParams{MaxCapacity: &capacity})
	require.NoError(t, err)
	handler := NewRegistrantsHandler(env.registrantsSvc, "test")

	rec := postRegister(t, handler, map[string]string{
		"firstName": "Somchai",
		"lastName":  "Jaidee",
		"phone":     "0812345678",
		"email":     "somchai@example.com",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv()
	env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	handler := NewRegistrantsHandler(env.registrantsSvc, "test")

	rec := postRegister(t, handler, map[string]string{
		"firstName": "Somchai",
		"lastName":  "Jaidee",
		"phone":     "0812345678",
		"email":     "somchai@example.com",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}
