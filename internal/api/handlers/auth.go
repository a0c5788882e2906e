package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/audit"
	"github.com/campbase/server/internal/auth"
	"github.com/campbase/server/internal/metrics"
)

type AuthHandler struct {
	Service *auth.Service
	Audit   *audit.Logger
	Env     string
}

func NewAuthHandler(service *auth.Service, auditLogger *audit.Logger, env string) *AuthHandler {
	return &AuthHandler{Service: service, Audit: auditLogger, Env: env}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /api/v1/admin/login. Unknown users and wrong passwords
// produce the identical response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	if req.Username == "" || req.Password == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Username and password are required", nil, h.Env)
		return
	}

	token, err := h.Service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()
			if h.Audit != nil {
				h.Audit.LogFailure("login", req.Username, audit.ClientIP(r), nil)
			}
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeForbidden, "Invalid credentials", nil, h.Env)
			return
		}
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	if h.Audit != nil {
		h.Audit.LogSuccess("login", req.Username, "user", req.Username, audit.ClientIP(r), nil)
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
