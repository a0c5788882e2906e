package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthzAlwaysOK(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "1.2.3", "abc123")

	rec := httptest.NewRecorder()
	checker.Healthz()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "1.2.3", resp.Version)
}

func TestReadyzFailsWithoutDatabase(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "1.2.3", "abc123")

	rec := httptest.NewRecorder()
	checker.Readyz()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "not_ready", resp.Status)
	require.Equal(t, "fail", resp.Checks["database"].Status)
}
