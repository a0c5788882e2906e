package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize is 1MB for public JSON endpoints
	DefaultMaxBodySize int64 = 1 << 20

	// UploadMaxBodySize is 10MB for multipart endpoints (payment proofs,
	// certificate uploads)
	UploadMaxBodySize int64 = 10 << 20
)

// RequestSize limits incoming request bodies with http.MaxBytesReader.
// Oversized bodies surface as 413 when the handler reads them.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// PublicRequestSize limits request bodies to 1MB.
func PublicRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}

// UploadRequestSize limits request bodies to 10MB.
func UploadRequestSize() func(http.Handler) http.Handler {
	return RequestSize(UploadMaxBodySize)
}
