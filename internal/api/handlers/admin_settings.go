package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/audit"
	"github.com/campbase/server/internal/domain/settings"
)

type AdminSettingsHandler struct {
	Service *settings.Service
	Audit   *audit.Logger
	Env     string
}

func NewAdminSettingsHandler(service *settings.Service, auditLogger *audit.Logger, env string) *AdminSettingsHandler {
	return &AdminSettingsHandler{Service: service, Audit: auditLogger, Env: env}
}

type settingsPayload struct {
	IsRegistrationOpen      bool   `json:"isRegistrationOpen"`
	MaxCapacity             int    `json:"maxCapacity"`
	CertificateDownloadDate string `json:"certificateDownloadDate,omitempty"`
	UpdatedAt               string `json:"updatedAt"`
}

func toSettingsPayload(s settings.Settings) settingsPayload {
	payload := settingsPayload{
		IsRegistrationOpen: s.IsRegistrationOpen,
		MaxCapacity:        s.MaxCapacity,
		UpdatedAt:          s.UpdatedAt.Format(timeFormat),
	}
	if s.CertificateDownloadDate != nil {
		payload.CertificateDownloadDate = s.CertificateDownloadDate.Format(timeFormat)
	}
	return payload
}

// Get handles GET /api/v1/admin/settings. The singleton is lazily created on
// first read, so this never 404s.
func (h *AdminSettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	current, err := h.Service.Get(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsPayload(current))
}

// updateSettingsRequest is a partial update. An explicit JSON null for
// certificateDownloadDate clears the gate; an absent field leaves it alone.
type updateSettingsRequest struct {
	IsRegistrationOpen *bool `json:"isRegistrationOpen"`
	MaxCapacity        *int  `json:"maxCapacity"`

	// RawMessage rather than *time.Time: an absent field decodes to an empty
	// message while an explicit null decodes to the literal "null", which is
	// the distinction between leave-alone and clear-the-gate.
	CertificateDownloadDate json.RawMessage `json:"certificateDownloadDate"`
}

// Update handles PATCH /api/v1/admin/settings.
func (h *AdminSettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	params := settings.UpdateParams{
		IsRegistrationOpen: req.IsRegistrationOpen,
		MaxCapacity:        req.MaxCapacity,
	}
	if len(req.CertificateDownloadDate) > 0 {
		if string(req.CertificateDownloadDate) == "null" {
			params.ClearCertificateDate = true
		} else {
			var value time.Time
			if err := json.Unmarshal(req.CertificateDownloadDate, &value); err != nil {
				problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid certificate download date", err, h.Env)
				return
			}
			params.CertificateDownloadDate = &value
		}
	}

	updated, err := h.Service.Update(r.Context(), params)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid settings", err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.LogSuccess("settings.update", principalName(r), "settings", "1", audit.ClientIP(r), nil)
	}
	writeJSON(w, http.StatusOK, toSettingsPayload(updated))
}
