package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

// HealthChecker backs /healthz and /readyz. Liveness never touches a
// dependency; readiness pings the database and inspects the job queue.
type HealthChecker struct {
	pool        *pgxpool.Pool
	riverClient *river.Client[pgx.Tx]
	version     string
	gitCommit   string
}

func NewHealthChecker(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		pool:        pool,
		riverClient: riverClient,
		version:     version,
		gitCommit:   gitCommit,
	}
}

type checkResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// Healthz reports process liveness only.
func (h *HealthChecker) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:    "ok",
			Version:   h.version,
			GitCommit: h.gitCommit,
			Timestamp: time.Now().UTC().Format(timeFormat),
		})
	}
}

// Readyz reports whether the server can usefully take traffic.
func (h *HealthChecker) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]checkResult{
			"database":  h.checkDatabase(ctx),
			"job_queue": h.checkJobQueue(),
		}

		status := "ready"
		code := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				status = "not_ready"
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:    status,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(timeFormat),
		})
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) checkResult {
	if h.pool == nil {
		return checkResult{Status: "fail", Message: "no database pool"}
	}

	start := time.Now()
	if err := h.pool.Ping(ctx); err != nil {
		return checkResult{Status: "fail", Message: err.Error()}
	}
	return checkResult{Status: "pass", LatencyMs: time.Since(start).Milliseconds()}
}

// checkJobQueue only warns: a stalled queue delays notifications but does
// not break admissions.
func (h *HealthChecker) checkJobQueue() checkResult {
	if h.riverClient == nil {
		return checkResult{Status: "warn", Message: "job queue not running"}
	}
	return checkResult{Status: "pass"}
}
