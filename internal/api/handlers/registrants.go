package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/metrics"
)

type RegistrantsHandler struct {
	Service  *registrants.Service
	Env      string
	validate *validator.Validate
}

func NewRegistrantsHandler(service *registrants.Service, env string) *RegistrantsHandler {
	return &RegistrantsHandler{Service: service, Env: env, validate: validator.New()}
}

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"required,max=32"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

type registrantPayload struct {
	ID          string              `json:"id"`
	FirstName   string              `json:"firstName"`
	LastName    string              `json:"lastName"`
	Phone       string              `json:"phone"`
	Email       string              `json:"email"`
	Status      string              `json:"status"`
	Certificate *certificatePayload `json:"certificate,omitempty"`
	CreatedAt   string              `json:"createdAt"`
}

type certificatePayload struct {
	Filename    string `json:"filename"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	UploadedAt  string `json:"uploadedAt"`
}

func toRegistrantPayload(reg *registrants.Registrant) registrantPayload {
	payload := registrantPayload{
		ID:        reg.ID,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Phone:     reg.Phone,
		Email:     reg.Email,
		Status:    string(reg.Status),
		CreatedAt: reg.CreatedAt.Format(timeFormat),
	}
	if reg.Certificate != nil {
		cert := certificatePayload{
			Filename:   reg.Certificate.Filename,
			MimeType:   reg.Certificate.MimeType,
			Size:       reg.Certificate.Size,
			UploadedAt: reg.Certificate.UploadedAt.Format(timeFormat),
		}
		if reg.Certificate.ReleaseDate != nil {
			cert.ReleaseDate = reg.Certificate.ReleaseDate.Format(timeFormat)
		}
		payload.Certificate = &cert
	}
	return payload
}

// Register handles POST /api/v1/registrants, the public registration form.
func (h *RegistrantsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid registration", err, h.Env)
		return
	}

	created, err := h.Service.Register(r.Context(), registrants.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, registrants.ErrInvalidInput):
			metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid registration", err, h.Env)
		case errors.Is(err, registrants.ErrRegistrationClosed):
			metrics.RegistrationsTotal.WithLabelValues("closed").Inc()
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Registration is closed", err, h.Env)
		case errors.Is(err, registrants.ErrCapacityReached):
			metrics.RegistrationsTotal.WithLabelValues("capacity").Inc()
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Registration is full", err, h.Env)
		case errors.Is(err, registrants.ErrEmailTaken):
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Email already registered", err, h.Env)
		default:
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	writeJSON(w, http.StatusCreated, toRegistrantPayload(created))
}
