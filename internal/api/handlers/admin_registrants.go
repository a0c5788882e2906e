package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/audit"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/sanitize"
	"github.com/campbase/server/internal/storage/blob"
)

// certMimeAllowed lists the certificate formats admins may upload.
var certMimeAllowed = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// CertificateStore is the blob subset the certificate upload path needs.
// Content addressing means a key can be shared with another certificate or a
// proof, so the handler never deletes; the sweep worker reclaims orphans.
type CertificateStore interface {
	Put(ctx context.Context, r io.Reader) (blob.Ref, error)
}

type AdminRegistrantsHandler struct {
	Service *registrants.Service
	Blobs   CertificateStore
	Audit   *audit.Logger
	MaxSize int64
	Env     string
}

func NewAdminRegistrantsHandler(service *registrants.Service, blobs CertificateStore, auditLogger *audit.Logger, maxSize int64, env string) *AdminRegistrantsHandler {
	return &AdminRegistrantsHandler{
		Service: service,
		Blobs:   blobs,
		Audit:   auditLogger,
		MaxSize: maxSize,
		Env:     env,
	}
}

// List handles GET /api/v1/admin/registrants.
func (h *AdminRegistrantsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	items, err := h.Service.List(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	payloads := make([]registrantPayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, toRegistrantPayload(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payloads})
}

// Get handles GET /api/v1/admin/registrants/{id}.
func (h *AdminRegistrantsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	registrant, err := h.Service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, registrants.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Registrant not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toRegistrantPayload(registrant))
}

// Delete handles DELETE /api/v1/admin/registrants/{id}. Any linked payment is
// removed first so the delete never leaves an orphaned proof.
func (h *AdminRegistrantsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	if err := h.Service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, registrants.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Registrant not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	if h.Audit != nil {
		h.Audit.LogSuccess("registrant.delete", principalName(r), "registrant", id, audit.ClientIP(r), nil)
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadCertificate handles POST /api/v1/admin/registrants/{id}/certificate:
// a multipart form with a single certificate file. The release date is
// stamped from the settings singleton at upload time, not from the request.
func (h *AdminRegistrantsHandler) UploadCertificate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil || h.Blobs == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid multipart form", err, h.Env)
		return
	}

	file, header, err := r.FormFile("certificate")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Certificate file is required", err, h.Env)
		return
	}
	defer file.Close()

	if h.MaxSize > 0 && header.Size > h.MaxSize {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeValidation, "Certificate file too large", nil, h.Env)
		return
	}

	mimeType, reader, err := sniffMime(file)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Unreadable certificate file", err, h.Env)
		return
	}
	if !certMimeAllowed[mimeType] {
		problem.Write(w, r, http.StatusUnsupportedMediaType, problem.TypeValidation, "Unsupported certificate format", nil, h.Env,
			problem.WithDetail("Accepted formats: PDF, JPEG, PNG"))
		return
	}

	ref, err := h.Blobs.Put(r.Context(), reader)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	cert := registrants.Certificate{
		Filename: sanitize.Text(header.Filename),
		BlobKey:  ref.Key,
		MimeType: mimeType,
		Size:     ref.Size,
	}
	if err := h.Service.AttachCertificate(r.Context(), id, cert); err != nil {
		// The dangling blob is left for the sweep; its key may be shared.
		switch {
		case errors.Is(err, registrants.ErrNotFound):
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Registrant not found", err, h.Env)
		case errors.Is(err, registrants.ErrInvalidInput):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid certificate", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	if h.Audit != nil {
		h.Audit.LogSuccess("certificate.upload", principalName(r), "registrant", id, audit.ClientIP(r), map[string]string{
			"filename": cert.Filename,
			"mime":     mimeType,
		})
	}

	registrant, err := h.Service.Get(r.Context(), id)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toRegistrantPayload(registrant))
}
