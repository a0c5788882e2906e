package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"

	"github.com/campbase/server/internal/api/handlers"
	"github.com/campbase/server/internal/api/middleware"
	"github.com/campbase/server/internal/audit"
	"github.com/campbase/server/internal/auth"
	"github.com/campbase/server/internal/config"
	"github.com/campbase/server/internal/domain/payments"
	"github.com/campbase/server/internal/domain/registrants"
	"github.com/campbase/server/internal/domain/settings"
	"github.com/campbase/server/internal/email"
	"github.com/campbase/server/internal/jobs"
	"github.com/campbase/server/internal/metrics"
	"github.com/campbase/server/internal/storage/blob"
	"github.com/campbase/server/internal/storage/postgres"
)

// Router bundles the HTTP handler with the long-lived components the serve
// command must start and stop alongside it.
type Router struct {
	Handler     http.Handler
	RiverClient *river.Client[pgx.Tx]
	RateLimits  *middleware.RateLimitStore
}

// NewRouter wires the whole request path: repositories, domain services,
// background jobs, and the middleware chains in front of every route.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool, version, gitCommit, buildDate string) (*Router, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, fmt.Errorf("repository init: %w", err)
	}

	blobs, err := blob.NewStore(cfg.Blob.Dir)
	if err != nil {
		return nil, fmt.Errorf("blob store init: %w", err)
	}

	emailSvc, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return nil, fmt.Errorf("email service init: %w", err)
	}

	settingsSvc := settings.NewService(repo.Settings(), logger)
	matcher := registrants.NewMatcher(repo.Registrants())
	registrantsSvc := registrants.NewService(repo.Registrants(), settingsSvc, repo.Payments(), logger)

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	workers, err := jobs.NewWorkers(
		jobs.DecisionNotifyWorker{Registrants: repo.Registrants(), Email: emailSvc},
		jobs.BlobSweepWorker{Pool: pool, Blobs: blobs, Logger: slogger},
	)
	if err != nil {
		return nil, fmt.Errorf("job workers init: %w", err)
	}
	riverClient, err := jobs.NewClient(pool, workers, slogger,
		[]rivertype.Hook{metrics.NewJobMetricsHook()}, jobs.NewPeriodicJobs())
	if err != nil {
		return nil, fmt.Errorf("river client init: %w", err)
	}

	workflow := payments.NewWorkflow(repo.Payments(), repo.Registrants(), matcher, blobs,
		jobs.NewNotifier(riverClient), logger)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	authSvc := auth.NewService(repo.Users(), jwtManager)
	auditLogger := audit.NewLogger()

	limits := middleware.NewRateLimitStore(cfg.RateLimit)
	env := cfg.Environment

	paymentsHandler := handlers.NewPaymentsHandler(workflow, limits, cfg.Blob.MaxProofSize, env)
	adminPayments := handlers.NewAdminPaymentsHandler(workflow, auditLogger, env)
	registrantsHandler := handlers.NewRegistrantsHandler(registrantsSvc, env)
	adminRegistrants := handlers.NewAdminRegistrantsHandler(registrantsSvc, blobs, auditLogger, cfg.Blob.MaxProofSize, env)
	certificates := handlers.NewCertificatesHandler(matcher, registrantsSvc, settingsSvc, blobs, env)
	adminSettings := handlers.NewAdminSettingsHandler(settingsSvc, auditLogger, env)
	authHandler := handlers.NewAuthHandler(authSvc, auditLogger, env)
	health := handlers.NewHealthChecker(pool, riverClient, version, gitCommit)

	jwtAuth := middleware.JWTAuth(jwtManager, env)
	requireAdmin := middleware.RequireAdmin(env)
	originGuard := middleware.OriginGuard(cfg.Origin, logger)
	originGuardStrict := middleware.OriginGuardStrict(cfg.Origin, logger)
	tierPublic := middleware.WithRateLimitTierHandler(middleware.TierPublic)
	tierCheck := middleware.WithRateLimitTierHandler(middleware.TierCheck)
	tierAdmin := middleware.WithRateLimitTierHandler(middleware.TierAdmin)
	tierLogin := middleware.WithRateLimitTierHandler(middleware.TierLogin)
	publicSize := middleware.PublicRequestSize()
	uploadSize := middleware.UploadRequestSize()

	// The tier must be in context before the limiter middleware runs, and the
	// origin guard's principal bypass only works after JWT extraction, so
	// both live in the per-route chains rather than the outer one.
	public := func(h http.Handler) http.Handler {
		return originGuard(tierPublic(limits.Middleware(publicSize(h))))
	}
	publicCheck := func(h http.Handler) http.Handler {
		return originGuard(tierCheck(limits.Middleware(publicSize(h))))
	}
	// Proof submission requires an Origin header outright: it is the one
	// public write that creates durable state plus a stored file.
	publicUpload := func(h http.Handler) http.Handler {
		return originGuardStrict(tierPublic(limits.Middleware(uploadSize(h))))
	}
	login := func(h http.Handler) http.Handler {
		return tierLogin(limits.Middleware(publicSize(h)))
	}
	admin := func(h http.Handler) http.Handler {
		return jwtAuth(requireAdmin(tierAdmin(limits.Middleware(publicSize(h)))))
	}
	adminUpload := func(h http.Handler) http.Handler {
		return jwtAuth(requireAdmin(tierAdmin(limits.Middleware(uploadSize(h)))))
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Healthz())
	mux.Handle("/readyz", health.Readyz())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/registrants", methodMux(map[string]http.Handler{
		http.MethodPost: public(http.HandlerFunc(registrantsHandler.Register)),
	}))
	mux.Handle("/api/v1/payments/check", methodMux(map[string]http.Handler{
		http.MethodPost: publicCheck(http.HandlerFunc(paymentsHandler.Check)),
	}))
	mux.Handle("/api/v1/payments", methodMux(map[string]http.Handler{
		http.MethodPost: publicUpload(http.HandlerFunc(paymentsHandler.Submit)),
	}))
	mux.Handle("/api/v1/certificates", methodMux(map[string]http.Handler{
		http.MethodGet: public(http.HandlerFunc(certificates.Search)),
	}))
	mux.Handle("/api/v1/certificates/{id}/download", methodMux(map[string]http.Handler{
		http.MethodGet: public(http.HandlerFunc(certificates.Download)),
	}))

	mux.Handle("/api/v1/admin/login", methodMux(map[string]http.Handler{
		http.MethodPost: login(http.HandlerFunc(authHandler.Login)),
	}))
	mux.Handle("/api/v1/admin/payments", methodMux(map[string]http.Handler{
		http.MethodGet: admin(http.HandlerFunc(adminPayments.List)),
	}))
	mux.Handle("/api/v1/admin/payments/{id}", methodMux(map[string]http.Handler{
		http.MethodPatch:  admin(http.HandlerFunc(adminPayments.Decide)),
		http.MethodDelete: admin(http.HandlerFunc(adminPayments.Delete)),
	}))
	mux.Handle("/api/v1/admin/payments/{id}/proof", methodMux(map[string]http.Handler{
		http.MethodGet: admin(http.HandlerFunc(adminPayments.Proof)),
	}))
	mux.Handle("/api/v1/admin/registrants", methodMux(map[string]http.Handler{
		http.MethodGet: admin(http.HandlerFunc(adminRegistrants.List)),
	}))
	mux.Handle("/api/v1/admin/registrants/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    admin(http.HandlerFunc(adminRegistrants.Get)),
		http.MethodDelete: admin(http.HandlerFunc(adminRegistrants.Delete)),
	}))
	mux.Handle("/api/v1/admin/registrants/{id}/certificate", methodMux(map[string]http.Handler{
		http.MethodPost: adminUpload(http.HandlerFunc(adminRegistrants.UploadCertificate)),
	}))
	mux.Handle("/api/v1/admin/settings", methodMux(map[string]http.Handler{
		http.MethodGet:   admin(http.HandlerFunc(adminSettings.Get)),
		http.MethodPatch: admin(http.HandlerFunc(adminSettings.Update)),
	}))

	// Outer chain, innermost listed first.
	var handler http.Handler = mux
	handler = middleware.CORS(cfg.Origin, logger)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.SecurityHeaders(cfg.Environment == "production")(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{
		Handler:     handler,
		RiverClient: riverClient,
		RateLimits:  limits,
	}, nil
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
