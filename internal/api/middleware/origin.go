package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/config"
	"github.com/campbase/server/internal/metrics"
)

// Validate applies the origin policy to a request's declared headers.
// Authenticated principals pass unconditionally; the token is a stronger
// provenance signal than a forgeable header. Otherwise a request must
// declare where it came from: no Origin and no Referer is a deny. A
// declared Origin must match the allow list exactly; with only a Referer,
// the referer URL must be prefixed by an allow-listed origin.
func Validate(cfg config.OriginConfig, origin, referer string, authenticated bool) bool {
	if authenticated {
		return true
	}
	origin = strings.TrimSpace(origin)
	referer = strings.TrimSpace(referer)
	if origin == "" && referer == "" {
		return false
	}
	if cfg.AllowAllOrigins {
		return true
	}
	if origin != "" {
		return originAllowed(origin, cfg.AllowedOrigins)
	}
	return refererAllowed(referer, cfg.AllowedOrigins)
}

// ValidateStrict is Validate for sensitive writes: the Origin header must
// be present, a Referer alone is not accepted.
func ValidateStrict(cfg config.OriginConfig, origin, referer string, authenticated bool) bool {
	if authenticated {
		return true
	}
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	if cfg.AllowAllOrigins {
		return true
	}
	return originAllowed(origin, cfg.AllowedOrigins)
}

// OriginGuard rejects requests that fail Validate with 403 problem+json.
func OriginGuard(cfg config.OriginConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return originGuard(cfg, logger, Validate)
}

// OriginGuardStrict wraps sensitive write endpoints with ValidateStrict.
func OriginGuardStrict(cfg config.OriginConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return originGuard(cfg, logger, ValidateStrict)
}

func originGuard(cfg config.OriginConfig, logger zerolog.Logger, validate func(config.OriginConfig, string, string, bool) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			referer := r.Header.Get("Referer")
			if validate(cfg, origin, referer, PrincipalFrom(r) != nil) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.OriginRejectionsTotal.Inc()
			logger.Warn().
				Str("origin", origin).
				Str("referer", referer).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("request rejected by origin policy")
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden,
				"Forbidden", nil, "",
				problem.WithDetail("Origin not allowed"))
		})
	}
}

// originAllowed performs a case-insensitive exact match against the list.
func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimRight(candidate, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

// refererAllowed accepts a referer URL that starts with an allow-listed
// origin followed by a path boundary, so https://camp.example.evil.com
// does not pass for https://camp.example.
func refererAllowed(referer string, allowed []string) bool {
	lower := strings.ToLower(referer)
	for _, candidate := range allowed {
		prefix := strings.ToLower(strings.TrimRight(candidate, "/"))
		if prefix == "" {
			continue
		}
		if lower == prefix || strings.HasPrefix(lower, prefix+"/") {
			return true
		}
	}
	return false
}

// CORS sets response headers for allowed cross-origin browser clients and
// answers preflight requests.
func CORS(cfg config.OriginConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowedOrigin := ""
			if cfg.AllowAllOrigins || originAllowed(origin, cfg.AllowedOrigins) {
				allowedOrigin = origin
			} else {
				logger.Warn().
					Str("origin", origin).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("CORS request rejected: origin not in allow list")
			}

			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, X-Request-ID")
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
