package http

import (
	"net/http"

	"golang.org/x/time/rate"

	"learning-platform/http/handlers"
	"learning-platform/http/middleware"
	"learning-platform/metrics"
)

// RouterConfig holds what NewRouter needs besides the handlers.
type RouterConfig struct {
	AllowedOrigins []string
	Auth           middleware.Authenticator
	Metrics        *metrics.Metrics

	// RateLimitPerSecond and RateLimitBurst throttle all routes when both
	// are positive.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewRouter registers every API route on a fresh mux and wraps it with
// panic recovery, CORS and the optional rate limit.
func NewRouter(h *handlers.Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	authed := middleware.RequireAuth(cfg.Auth)

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, middleware.Instrument(cfg.Metrics, pattern, fn))
	}

	// Provider callbacks and onboarding
	handle("/ipn/", h.IPN)
	handle("/save-invoice/", h.SaveInvoice)
	handle("/register/", h.Register)

	// Subscription management
	handle("/subscribe/", authed(h.Subscribe))
	handle("/extend_subscription/", authed(h.ExtendSubscription))
	handle("/unsubscribe/", authed(h.Unsubscribe))
	handle("/subscription/", authed(h.Subscription))

	// Course access
	handle("/enroll/", authed(h.Enroll))
	handle("/lessons/", authed(h.Lessons))

	// Payment history
	handle("/payments/", authed(h.PaymentHistory))
	handle("/payments/export/", authed(h.ExportPayments))

	handle("/health", h.Health)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 && cfg.RateLimitBurst > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)
	}
	return middleware.Recover(middleware.CORS(cfg.AllowedOrigins, middleware.RateLimit(limiter, mux)))
}
