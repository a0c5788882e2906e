package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/api/middleware"
	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/domain/payments"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/metrics"
	"github.com/campbase/server/internal/sanitize"
)

// proofMimeAllowed lists the payment slip formats we accept. The type is
// sniffed from the upload's leading bytes, never taken from the client's
// declared Content-Type.
var proofMimeAllowed = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type PaymentsHandler struct {
	Workflow     *payments.Workflow
	Limits       *middleware.RateLimitStore
	MaxProofSize int64
	Env          string
}

func NewPaymentsHandler(workflow *payments.Workflow, limits *middleware.RateLimitStore, maxProofSize int64, env string) *PaymentsHandler {
	return &PaymentsHandler{Workflow: workflow, Limits: limits, MaxProofSize: maxProofSize, Env: env}
}

type checkResponse struct {
	Registered bool   `json:"registered"`
	Submitted  bool   `json:"submitted"`
	Status     string `json:"status,omitempty"`
}

// Check handles POST /api/v1/payments/check. On top of the per-client tier
// budget it burns a client+phone composite key, so a single client probing
// many numbers exhausts its budget just as fast as one hammering a single
// number.
func (h *PaymentsHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Workflow == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	// The body is decoded as a raw map so key sanitization sees every key
	// the caller sent, not just the ones a typed struct would keep.
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	doc, removed, err := sanitize.CleanDocument(raw)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}
	if len(removed) > 0 {
		sanitize.LogRemoved(zerolog.Ctx(r.Context()), removed)
		metrics.SanitizedKeysTotal.Add(float64(len(removed)))
	}
	name, _ := doc["name"].(string)
	rawPhone, _ := doc["phone"].(string)
	if name == "" || rawPhone == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Name and phone are required", nil, h.Env)
		return
	}

	phone := registrants.NormalizePhone(rawPhone)
	if h.Limits != nil {
		key := h.Limits.ClientKey(r) + "|" + phone
		if ok, retryAfter := h.Limits.AllowKey(middleware.TierCheck, key); !ok {
			metrics.RateLimitRejectionsTotal.WithLabelValues(string(middleware.TierCheck)).Inc()
			middleware.WriteRateLimited(w, r, retryAfter)
			return
		}
	}

	result, err := h.Workflow.Check(r.Context(), sanitize.Text(name), phone)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	resp := checkResponse{Registered: result.Registered, Submitted: result.Submitted}
	if result.Submitted {
		resp.Status = string(result.Status)
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Status     string `json:"status"`
	UploadedAt string `json:"uploadedAt"`
}

// Submit handles POST /api/v1/payments: a multipart form with name, phone and
// a slip file. The response echoes the registrant's canonical name, not the
// caller's spelling.
func (h *PaymentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Workflow == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		metrics.PaymentSubmissionsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid multipart form", err, h.Env)
		return
	}

	values, removed := sanitize.CleanValues(r.MultipartForm.Value)
	if len(removed) > 0 {
		sanitize.LogRemoved(zerolog.Ctx(r.Context()), removed)
		metrics.SanitizedKeysTotal.Add(float64(len(removed)))
	}
	name := sanitize.Text(values.Get("name"))
	phone := values.Get("phone")
	if name == "" || phone == "" {
		metrics.PaymentSubmissionsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Name and phone are required", nil, h.Env)
		return
	}

	file, header, err := r.FormFile("slip")
	if err != nil {
		metrics.PaymentSubmissionsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Slip file is required", err, h.Env)
		return
	}
	defer file.Close()

	if h.MaxProofSize > 0 && header.Size > h.MaxProofSize {
		metrics.PaymentSubmissionsTotal.WithLabelValues("too_large").Inc()
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeValidation, "Slip file too large", nil, h.Env)
		return
	}

	mimeType, reader, err := sniffMime(file)
	if err != nil {
		metrics.PaymentSubmissionsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Unreadable slip file", err, h.Env)
		return
	}
	if !proofMimeAllowed[mimeType] {
		metrics.PaymentSubmissionsTotal.WithLabelValues("bad_mime").Inc()
		problem.Write(w, r, http.StatusUnsupportedMediaType, problem.TypeValidation, "Unsupported slip format", nil, h.Env,
			problem.WithDetail("Accepted formats: JPEG, PNG, WebP, PDF"))
		return
	}

	payment, err := h.Workflow.Submit(r.Context(), payments.SubmitParams{
		Name:      name,
		Phone:     phone,
		Proof:     reader,
		ProofMime: mimeType,
	})
	if err != nil {
		switch {
		case errors.Is(err, registrants.ErrNotFound):
			metrics.PaymentSubmissionsTotal.WithLabelValues("not_registered").Inc()
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "No matching registration", err, h.Env)
		case errors.Is(err, payments.ErrAlreadySubmitted):
			metrics.PaymentSubmissionsTotal.WithLabelValues("duplicate").Inc()
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Payment already submitted", err, h.Env)
		default:
			metrics.PaymentSubmissionsTotal.WithLabelValues("error").Inc()
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	metrics.PaymentSubmissionsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusCreated, submitResponse{
		ID:         payment.ID,
		Name:       payment.Name,
		Phone:      payment.Phone,
		Status:     string(payment.Status),
		UploadedAt: payment.UploadedAt.Format(timeFormat),
	})
}

// sniffMime detects the content type from the leading bytes and returns a
// reader that replays them ahead of the rest of the stream.
func sniffMime(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	mimeType := http.DetectContentType(head)
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType, io.MultiReader(bytes.NewReader(head), r), nil
}
