package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/domain/settings"
)

func attachCertificate(t *testing.T, env *testEnv, registrantID string, content []byte) {
	t.Helper()
	ref, err := env.blobs.Put(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)
	err = env.registrantsSvc.AttachCertificate(context.Background(), registrantID, registrants.Certificate{
		Filename: "certificate.pdf",
		BlobKey:  ref.Key,
		MimeType: "application/pdf",
		Size:     ref.Size,
	})
	require.NoError(t, err)
}

func setReleaseDate(t *testing.T, env *testEnv, date time.Time) {
	t.Helper()
	_, err := env.settingsSvc.Update(context.Background(), settings.UpdateParams{CertificateDownloadDate: &date})
	require.NoError(t, err)
}

func getSearch(t *testing.T, handler *CertificatesHandler, name, phone string) *httptest.ResponseRecorder {
	t.Helper()
	query := url.Values{"name": {name}, "phone": {phone}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	handler.Search(rec, req)
	return rec
}

func getDownload(handler *CertificatesHandler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/certificates/"+id+"/download", nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	handler.Download(rec, req)
	return rec
}

func newCertificatesHandler(env *testEnv) *CertificatesHandler {
	return NewCertificatesHandler(env.matcher, env.registrantsSvc, env.settingsSvc, env.blobs, "test")
}

func TestCertificateSearchNoMatch(t *testing.T) {
	env := newTestEnv()
	handler := newCertificatesHandler(env)

	rec := getSearch(t, handler, "Nobody Here", "0800000000")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCertificateSearchNoCertificateYet(t *testing.T) {
	env := newTestEnv()
	env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	handler := newCertificatesHandler(env)

	rec := getSearch(t, handler, "Somchai Jaidee", "0812345678")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp certificateSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Available)
	require.Empty(t, resp.DownloadURL)
}

func TestCertificateSearchReleased(t *testing.T) {
	env := newTestEnv()
	reg := env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	attachCertificate(t, env, reg.ID, []byte("%PDF-1.4 certificate"))
	setReleaseDate(t, env, time.Now().Add(-time.Hour))
	handler := newCertificatesHandler(env)

	rec := getSearch(t, handler, "Somchai Jaidee", "0812345678")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp certificateSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Available)
	require.Equal(t, "/api/v1/certificates/"+reg.ID+"/download", resp.DownloadURL)
}

func TestCertificateSearchGatedBeforeRelease(t *testing.T) {
	env := newTestEnv()
	reg := env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	attachCertificate(t, env, reg.ID, []byte("%PDF-1.4 certificate"))
	setReleaseDate(t, env, time.Now().Add(time.Hour))
	handler := newCertificatesHandler(env)

	rec := getSearch(t, handler, "Somchai Jaidee", "0812345678")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp certificateSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Available)
	require.Empty(t, resp.DownloadURL)
	require.NotEmpty(t, resp.ReleaseDate)
}

func TestCertificateDownloadGateCheckedIndependently(t *testing.T) {
	env := newTestEnv()
	reg := env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	attachCertificate(t, env, reg.ID, []byte("%PDF-1.4 certificate"))
	handler := newCertificatesHandler(env)

	// Released: a minted link works.
	setReleaseDate(t, env, time.Now().Add(-time.Hour))
	rec := getDownload(handler, reg.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "certificate.pdf")

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 certificate"), body)

	// Admin moves the date forward again: the same link stops working.
	setReleaseDate(t, env, time.Now().Add(time.Hour))
	rec = getDownload(handler, reg.ID)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCertificateDownloadNoGateDateReleasesImmediately(t *testing.T) {
	env := newTestEnv()
	reg := env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	attachCertificate(t, env, reg.ID, []byte("%PDF-1.4 certificate"))
	handler := newCertificatesHandler(env)

	rec := getDownload(handler, reg.ID)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCertificateDownloadUnknownRegistrant(t *testing.T) {
	env := newTestEnv()
	handler := newCertificatesHandler(env)

	id := "01HV5M0000000000000000TEST"
	rec := getDownload(handler, id)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCertificateDownloadNoCertificate(t *testing.T) {
	env := newTestEnv()
	reg := env.seedRegistrant("Somchai", "Jaidee", "0812345678", "somchai@example.com")
	handler := newCertificatesHandler(env)

	rec := getDownload(handler, reg.ID)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
