package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/campbase/server/internal/api/middleware"
	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/audit"
	"github.com/campbase/server/internal/domain/payments"
	"github.com/campbase/server/internal/metrics"
)

type AdminPaymentsHandler struct {
	Workflow *payments.Workflow
	Audit    *audit.Logger
	Env      string
	validate *validator.Validate
}

func NewAdminPaymentsHandler(workflow *payments.Workflow, auditLogger *audit.Logger, env string) *AdminPaymentsHandler {
	return &AdminPaymentsHandler{
		Workflow: workflow,
		Audit:    auditLogger,
		Env:      env,
		validate: validator.New(),
	}
}

type paymentPayload struct {
	ID           string `json:"id"`
	RegistrantID string `json:"registrantId"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Status       string `json:"status"`
	Note         string `json:"note,omitempty"`
	ProofMime    string `json:"proofMime"`
	ProofSize    int64  `json:"proofSize"`
	UploadedAt   string `json:"uploadedAt"`
}

func toPaymentPayload(p *payments.Payment) paymentPayload {
	return paymentPayload{
		ID:           p.ID,
		RegistrantID: p.RegistrantID,
		Name:         p.Name,
		Phone:        p.Phone,
		Status:       string(p.Status),
		Note:         p.Note,
		ProofMime:    p.ProofMime,
		ProofSize:    p.ProofSize,
		UploadedAt:   p.UploadedAt.Format(timeFormat),
	}
}

// List handles GET /api/v1/admin/payments.
func (h *AdminPaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Workflow == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	items, err := h.Workflow.List(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	payloads := make([]paymentPayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, toPaymentPayload(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payloads})
}

type decideRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
	Note   string `json:"note" validate:"max=1000"`
}

type decideResponse struct {
	Payment           paymentPayload `json:"payment"`
	RegistrantUpdated bool           `json:"registrantUpdated"`
}

// Decide handles PATCH /api/v1/admin/payments/{id}. A 200 with
// registrantUpdated=false means the decision stuck but the linked
// registrant's status could not be moved.
func (h *AdminPaymentsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Workflow == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid decision", err, h.Env)
		return
	}

	actor := principalName(r)
	result, err := h.Workflow.Decide(r.Context(), id, payments.Status(req.Status), req.Note, actor)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Payment not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	metrics.PaymentDecisionsTotal.WithLabelValues(req.Status).Inc()
	if h.Audit != nil {
		h.Audit.LogSuccess("payment.decide", actor, "payment", id, audit.ClientIP(r), map[string]string{
			"status":             req.Status,
			"registrant_updated": strconv.FormatBool(result.RegistrantUpdated),
		})
	}

	writeJSON(w, http.StatusOK, decideResponse{
		Payment:           toPaymentPayload(result.Payment),
		RegistrantUpdated: result.RegistrantUpdated,
	})
}

type deletePaymentResponse struct {
	Deleted           bool `json:"deleted"`
	RegistrantRemoved bool `json:"registrantRemoved"`
}

// Delete handles DELETE /api/v1/admin/payments/{id}?cascade=true.
func (h *AdminPaymentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Workflow == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	cascade := r.URL.Query().Get("cascade") == "true"
	result, err := h.Workflow.Delete(r.Context(), id, cascade)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Payment not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	actor := principalName(r)
	if h.Audit != nil {
		h.Audit.LogSuccess("payment.delete", actor, "payment", id, audit.ClientIP(r), map[string]string{
			"cascade":            strconv.FormatBool(cascade),
			"registrant_removed": strconv.FormatBool(result.RegistrantRemoved),
		})
	}

	writeJSON(w, http.StatusOK, deletePaymentResponse{
		Deleted:           true,
		RegistrantRemoved: result.RegistrantRemoved,
	})
}

// Proof handles GET /api/v1/admin/payments/{id}/proof, streaming the slip
// image for review.
func (h *AdminPaymentsHandler) Proof(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Workflow == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	rc, payment, err := h.Workflow.OpenProof(r.Context(), id)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Payment not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", payment.ProofMime)
	if payment.ProofSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(payment.ProofSize, 10))
	}
	w.Header().Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// principalName resolves the authenticated admin for audit trails.
func principalName(r *http.Request) string {
	if p := middleware.PrincipalFrom(r); p != nil {
		return p.Username
	}
	return "unknown"
}
