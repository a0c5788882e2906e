package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campbase/server/internal/api/problem"
	"github.com/campbase/server/internal/audit"
	"github.com/campbase/server/internal/config"
	"github.com/campbase/server/internal/metrics"
)

type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	TierCheck  RateLimitTier = "check" // Tight budget for the payment status probe
	TierAdmin  RateLimitTier = "admin"
	TierLogin  RateLimitTier = "login" // Aggressive rate limiting for login attempts
)

type rateLimitKey string

const rateLimitTierKey rateLimitKey = "rateLimitTier"

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithRateLimitTier(r.Context(), tier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Limiter is a fixed-window counter per key. A key's window opens on its
// first request and admits up to limit requests until the window expires;
// the next request after expiry opens a fresh window. Rejections report how
// long the current window has left.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*windowBucket
	stop    chan struct{}
	once    sync.Once
}

type windowBucket struct {
	count       int
	windowStart time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*windowBucket),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow records a request against key and reports whether it fits the
// window's budget. When it does not, retryAfter is the remainder of the
// current window.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, exists := l.buckets[key]
	if !exists || now.Sub(bucket.windowStart) >= l.window {
		l.buckets[key] = &windowBucket{count: 1, windowStart: now}
		return true, 0
	}

	if bucket.count < l.limit {
		bucket.count++
		return true, 0
	}
	return false, bucket.windowStart.Add(l.window).Sub(now)
}

// Stop terminates the background sweep goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops expired buckets so the map cannot grow without bound under a
// key-churning client.
func (l *Limiter) sweep() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, bucket := range l.buckets {
		if now.Sub(bucket.windowStart) >= l.window {
			delete(l.buckets, key)
		}
	}
}

// RateLimitStore holds one Limiter per tier.
type RateLimitStore struct {
	limiters map[RateLimitTier]*Limiter
	cidrs    []string
}

func NewRateLimitStore(cfg config.RateLimitConfig) *RateLimitStore {
	return &RateLimitStore{
		limiters: map[RateLimitTier]*Limiter{
			TierPublic: NewLimiter(cfg.PublicPerMinute, time.Minute),
			TierCheck:  NewLimiter(cfg.CheckPerMinute, time.Minute),
			TierAdmin:  NewLimiter(cfg.AdminPerMinute, time.Minute),
			TierLogin:  NewLimiter(cfg.LoginPer15Minutes, 15*time.Minute),
		},
		cidrs: cfg.TrustedProxyCIDRs,
	}
}

// Stop shuts down every tier's sweep goroutine.
func (s *RateLimitStore) Stop() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

// ClientKey resolves the client identity used for limiter bucketing.
func (s *RateLimitStore) ClientKey(r *http.Request) string {
	return clientKey(r, s.cidrs)
}

// AllowKey records a request against an explicit key in the named tier's
// limiter. The payment status probe uses this with a client+phone composite
// key so one client cannot probe many phone numbers inside a single window.
func (s *RateLimitStore) AllowKey(tier RateLimitTier, key string) (bool, time.Duration) {
	limiter := s.limiters[tier]
	if limiter == nil {
		return true, 0
	}
	return limiter.Allow(key)
}

// Middleware enforces the request's tier budget, keyed by client IP. The
// resolved IP is stashed on the context so audit entries record the same
// trusted-proxy-aware address the limiter bucketed on.
func (s *RateLimitStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}

		client := clientKey(r, s.cidrs)
		r = r.WithContext(audit.WithClientIP(r.Context(), client))

		tier := TierPublic
		if value, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
			tier = value
		}

		limiter := s.limiters[tier]
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		if ok, retryAfter := limiter.Allow(client); !ok {
			metrics.RateLimitRejectionsTotal.WithLabelValues(string(tier)).Inc()
			WriteRateLimited(w, r, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WriteRateLimited writes the 429 response with a Retry-After covering the
// rest of the current window.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited,
		"Too Many Requests", nil, "",
		problem.WithDetail("Request budget exhausted, retry later"))
}

// clientKey extracts the client identifier for rate limiting, trusting
// forwarding headers only when the immediate peer is a configured proxy.
func clientKey(r *http.Request, trustedProxyCIDRs []string) string {
	if r == nil {
		return ""
	}

	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trustedProxyCIDRs) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	return remoteIP
}

func isTrustedProxy(ip string, trustedCIDRs []string) bool {
	if len(trustedCIDRs) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, cidrStr := range trustedCIDRs {
		_, cidr, err := net.ParseCIDR(cidrStr)
		if err != nil {
			continue
		}
		if cidr.Contains(parsedIP) {
			return true
		}
	}
	return false
}
