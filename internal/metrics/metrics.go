package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all Campbase metrics
const namespace = "campbase"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// RegistrationsTotal counts registration attempts by outcome
// (created, closed, capacity, duplicate, invalid, error).
var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts by outcome",
	},
	[]string{"outcome"},
)

// PaymentSubmissionsTotal counts payment proof submissions by outcome
// (created, duplicate, not_found, invalid, error).
var PaymentSubmissionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_submissions_total",
		Help:      "Total number of payment proof submissions by outcome",
	},
	[]string{"outcome"},
)

// PaymentDecisionsTotal counts admin payment decisions by resulting status.
var PaymentDecisionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_decisions_total",
		Help:      "Total number of admin payment decisions by resulting status",
	},
	[]string{"status"},
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter
var RateLimitRejectionsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Total number of requests rejected by the rate limiter",
	},
	[]string{"limiter"},
)

// OriginRejectionsTotal counts requests rejected by origin validation
var OriginRejectionsTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "origin_rejections_total",
		Help:      "Total number of requests rejected by origin validation",
	},
)

// CertificateDownloadsTotal counts certificate downloads by outcome
// (success, gated, not_found, invalid, error).
var CertificateDownloadsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "certificate_downloads_total",
		Help:      "Total number of certificate download requests by outcome",
	},
	[]string{"outcome"},
)

// SanitizedKeysTotal counts document keys stripped at the ingestion boundary
var SanitizedKeysTotal = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sanitized_keys_total",
		Help:      "Total number of unsafe document keys stripped from input",
	},
)

// LoginAttemptsTotal counts admin login attempts by outcome (success, failure)
var LoginAttemptsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of admin login attempts by outcome",
	},
	[]string{"outcome"},
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Init records build metadata on the app_info gauge. Call once at startup.
func Init(version, gitCommit, buildDate string) {
	if version == "" {
		version = "dev"
	}
	if gitCommit == "" {
		gitCommit = "unknown"
	}
	if buildDate == "" {
		buildDate = "unknown"
	}
	AppInfo.WithLabelValues(version, gitCommit, buildDate).Set(1)
}
