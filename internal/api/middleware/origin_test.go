package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/auth"
	"github.com/campbase/server/internal/config"
)

func originHandler(cfg config.OriginConfig) http.Handler {
	return OriginGuard(cfg, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestOriginGuardAllowsListedOrigin(t *testing.T) {
	handler := originHandler(config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Origin", "https://camp.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestOriginGuardRejectsUnlistedOrigin(t *testing.T) {
	handler := originHandler(config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestOriginGuardRejectsHeaderlessRequest(t *testing.T) {
	handler := originHandler(config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("headerless request must be rejected, got %d", rec.Code)
	}
}

func TestOriginGuardFallsBackToReferer(t *testing.T) {
	handler := originHandler(config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Referer", "https://evil.example.com/form?x=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("referer fallback must reject, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Referer", "https://camp.example.com/register")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("allowed referer must pass, got %d", rec.Code)
	}
}

func TestOriginGuardRefererPrefixNeedsPathBoundary(t *testing.T) {
	cfg := config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}}
	handler := originHandler(cfg)

	// An attacker domain that merely starts with the allowed origin string.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Referer", "https://camp.example.com.evil.net/form")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("lookalike referer host must be rejected, got %d", rec.Code)
	}
}

func TestOriginGuardBypassForAuthenticatedPrincipal(t *testing.T) {
	handler := originHandler(config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	principal := &auth.Principal{Username: "admin", Role: auth.RoleAdmin}
	req = req.WithContext(context.WithValue(req.Context(), principalKey, principal))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated request must bypass origin check, got %d", rec.Code)
	}
}

func TestOriginGuardAllowAll(t *testing.T) {
	handler := originHandler(config.OriginConfig{AllowAllOrigins: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("allow-all must pass any origin, got %d", rec.Code)
	}
}

func TestValidateStrictRequiresOriginHeader(t *testing.T) {
	cfg := config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}}

	if ValidateStrict(cfg, "", "https://camp.example.com/register", false) {
		t.Error("strict variant must not accept a referer alone")
	}
	if !ValidateStrict(cfg, "https://camp.example.com", "", false) {
		t.Error("strict variant must accept a listed origin")
	}
	if ValidateStrict(cfg, "https://evil.example.com", "", false) {
		t.Error("strict variant must reject an unlisted origin")
	}
	if !ValidateStrict(cfg, "", "", true) {
		t.Error("strict variant must honor the authenticated bypass")
	}
}

func TestValidateMatrix(t *testing.T) {
	cfg := config.OriginConfig{AllowedOrigins: []string{"https://camp.example.com"}}

	cases := []struct {
		name          string
		origin        string
		referer       string
		authenticated bool
		want          bool
	}{
		{"listed origin", "https://camp.example.com", "", false, true},
		{"listed origin trailing slash", "https://camp.example.com/", "", false, true},
		{"unlisted origin", "https://evil.example.com", "", false, false},
		{"null origin", "null", "", false, false},
		{"no headers", "", "", false, false},
		{"no headers but authenticated", "", "", true, true},
		{"referer under listed origin", "", "https://camp.example.com/form", false, true},
		{"referer equal to origin", "", "https://camp.example.com", false, true},
		{"referer on other host", "", "https://evil.example.com/form", false, false},
		{"unlisted origin beats allowed referer", "https://evil.example.com", "https://camp.example.com/form", false, false},
	}
	for _, tc := range cases {
		if got := Validate(cfg, tc.origin, tc.referer, tc.authenticated); got != tc.want {
			t.Errorf("%s: Validate = %v, want %v", tc.name, got, tc.want)
		}
	}
}
