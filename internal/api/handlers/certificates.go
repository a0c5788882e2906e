package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/domain/settings"
	"github.com/campbase/server/internal/metrics"
	"github.com/campbase/server/internal/sanitize"
)

// CertificateOpener is the blob subset the download path needs.
type CertificateOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type CertificatesHandler struct {
	Matcher     *registrants.Matcher
	Registrants *registrants.Service
	Settings    *settings.Service
	Blobs       CertificateOpener
	Env         string
}

func NewCertificatesHandler(matcher *registrants.Matcher, registrantsService *registrants.Service, settingsService *settings.Service, blobs CertificateOpener, env string) *CertificatesHandler {
	return &CertificatesHandler{
		Matcher:     matcher,
		Registrants: registrantsService,
		Settings:    settingsService,
		Blobs:       blobs,
		Env:         env,
	}
}

type certificateSearchResponse struct {
	RegistrantID string `json:"registrantId"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Available    bool   `json:"available"`
	ReleaseDate  string `json:"releaseDate,omitempty"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
}

// Search handles GET /api/v1/certificates?name=&phone=. It resolves the
// registrant through the same matcher the payment flow uses, then reports
// whether their certificate is ready and released.
func (h *CertificatesHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Matcher == nil || h.Settings == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	values, removed := sanitize.CleanValues(r.URL.Query())
	if len(removed) > 0 {
		sanitize.LogRemoved(zerolog.Ctx(r.Context()), removed)
		metrics.SanitizedKeysTotal.Add(float64(len(removed)))
	}
	name := sanitize.Text(values.Get("name"))
	phone := values.Get("phone")
	if name == "" || phone == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Name and phone are required", nil, h.Env)
		return
	}

	registrant, err := h.Matcher.Resolve(r.Context(), name, registrants.NormalizePhone(phone))
	if err != nil {
		if errors.Is(err, registrants.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "No matching registration", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	resp := certificateSearchResponse{
		RegistrantID: registrant.ID,
		Name:         registrant.FirstName + " " + registrant.LastName,
		Status:       string(registrant.Status),
	}

	if registrant.Certificate != nil {
		released, releaseDate, err := h.released(r.Context())
		if err != nil {
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
			return
		}
		if releaseDate != nil {
			resp.ReleaseDate = releaseDate.Format(timeFormat)
		}
		if released {
			resp.Available = true
			resp.DownloadURL = "/api/v1/certificates/" + registrant.ID + "/download"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Download handles GET /api/v1/certificates/{id}/download. The release gate
// is checked here independently of Search; a link minted before an admin
// moved the date back does not leak the file.
func (h *CertificatesHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Registrants == nil || h.Settings == nil || h.Blobs == nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", nil, h.Env)
		return
	}

	id, err := ulidParam(r, "id")
	if err != nil {
		metrics.CertificateDownloadsTotal.WithLabelValues("invalid").Inc()
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		return
	}

	registrant, err := h.Registrants.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, registrants.ErrNotFound) {
			metrics.CertificateDownloadsTotal.WithLabelValues("not_found").Inc()
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Certificate not found", err, h.Env)
			return
		}
		metrics.CertificateDownloadsTotal.WithLabelValues("error").Inc()
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	if registrant.Certificate == nil {
		metrics.CertificateDownloadsTotal.WithLabelValues("not_found").Inc()
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Certificate not found", nil, h.Env)
		return
	}

	released, releaseDate, err := h.released(r.Context())
	if err != nil {
		metrics.CertificateDownloadsTotal.WithLabelValues("error").Inc()
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	if !released {
		metrics.CertificateDownloadsTotal.WithLabelValues("gated").Inc()
		detail := "Certificate is not yet released"
		if releaseDate != nil {
			detail = "Certificate releases on " + releaseDate.Format(timeFormat)
		}
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Certificate not yet available", nil, h.Env,
			problem.WithDetail(detail))
		return
	}

	rc, err := h.Blobs.Open(r.Context(), registrant.Certificate.BlobKey)
	if err != nil {
		metrics.CertificateDownloadsTotal.WithLabelValues("error").Inc()
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}
	defer rc.Close()

	metrics.CertificateDownloadsTotal.WithLabelValues("success").Inc()
	w.Header().Set("Content-Type", registrant.Certificate.MimeType)
	if registrant.Certificate.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(registrant.Certificate.Size, 10))
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": registrant.Certificate.Filename,
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// released reads the settings singleton fresh and applies the release gate.
// Reading per call means an admin moving the date takes effect immediately,
// in both directions.
func (h *CertificatesHandler) released(ctx context.Context) (bool, *time.Time, error) {
	current, err := h.Settings.Get(ctx)
	if err != nil {
		return false, nil, err
	}
	date := current.CertificateDownloadDate
	return settings.CanRelease(time.Now().UTC(), date), date, nil
}
