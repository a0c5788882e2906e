package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campbase/server/internal/auth"
)

func newAuthChain(manager *auth.JWTManager) http.Handler {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := PrincipalFrom(r)
		if principal == nil {
			http.Error(w, "no principal", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(principal.Username))
	})
	handler = RequireAdmin("test")(handler)
	return JWTAuth(manager, "test")(handler)
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	manager := auth.NewJWTManager("secret-key-for-tests", time.Hour, "campbase")
	token, err := manager.Generate("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthChain(manager).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "admin" {
		t.Errorf("principal username = %q", rec.Body.String())
	}
}

func TestJWTAuthRejectsMissingHeader(t *testing.T) {
	manager := auth.NewJWTManager("secret-key-for-tests", time.Hour, "campbase")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments", nil)
	rec := httptest.NewRecorder()
	newAuthChain(manager).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTAuthRejectsGarbageToken(t *testing.T) {
	manager := auth.NewJWTManager("secret-key-for-tests", time.Hour, "campbase")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	newAuthChain(manager).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdminRejectsOtherRoles(t *testing.T) {
	manager := auth.NewJWTManager("secret-key-for-tests", time.Hour, "campbase")
	token, err := manager.Generate("viewer", "viewer")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/payments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newAuthChain(manager).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
