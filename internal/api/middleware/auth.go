package middleware

import (
	"context"
	"net/http"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/auth"
)

type contextKeyAuth string

const principalKey contextKeyAuth = "principal"

// JWTAuth validates Bearer tokens on admin routes and stores the resulting
// principal in the request context.
func JWTAuth(manager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeForbidden,
					"Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeForbidden,
					"Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			principal, err := manager.PrincipalFromToken(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeForbidden,
					"Invalid or expired token", problem.ErrUnauthorized, env)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, &principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects authenticated principals that lack the admin role.
// Must run after JWTAuth.
func RequireAdmin(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFrom(r)
			if principal == nil || !principal.IsAdmin() {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden,
					"Forbidden", problem.ErrForbidden, env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFrom returns the authenticated principal, or nil.
func PrincipalFrom(r *http.Request) *auth.Principal {
	if r == nil {
		return nil
	}
	if principal, ok := r.Context().Value(principalKey).(*auth.Principal); ok {
		return principal
	}
	return nil
}
