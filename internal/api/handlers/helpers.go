package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// timeFormat is the wire format for every timestamp the API emits.
const timeFormat = time.RFC3339

// FieldError reports a validation failure on a specific request field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.PathValue(key))
}

// ulidParam extracts and validates a ULID path parameter.
func ulidParam(r *http.Request, key string) (string, error) {
	value := pathParam(r, key)
	if value == "" {
		return "", FieldError{Field: key, Message: "missing"}
	}
	if _, err := ulid.ParseStrict(value); err != nil {
		return "", FieldError{Field: key, Message: "invalid ULID"}
	}
	return value, nil
}
