package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)

	Write(rec, req, http.StatusNotFound, TypeNotFound, "Not found", errors.New("no registrant"), "test")

	if got := rec.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("content type = %q", got)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var body ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Type != TypeNotFound {
		t.Errorf("type = %q", body.Type)
	}
	if body.Instance != "/api/v1/payments" {
		t.Errorf("instance = %q", body.Instance)
	}
	if body.Detail != "no registrant" {
		t.Errorf("detail = %q, want error text in test env", body.Detail)
	}
}

func TestWriteSuppressesDetailInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)

	Write(rec, req, http.StatusInternalServerError, TypeServerError, "Server error", errors.New("pgx: connection refused"), "production")

	var body ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Detail != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("detail = %q, internal message must not leak", body.Detail)
	}
}

func TestWriteOptions(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)

	Write(rec, req, http.StatusBadRequest, TypeValidation, "Invalid request", nil, "test",
		WithDetail("phone is required"),
		WithErrors(map[string]interface{}{"phone": "required"}),
	)

	var body ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Detail != "phone is required" {
		t.Errorf("detail = %q", body.Detail)
	}
	if body.Errors["phone"] != "required" {
		t.Errorf("errors = %v", body.Errors)
	}
}
