package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"learning-platform/http/response"
)

// RateLimit rejects requests with 429 once limiter runs out of tokens. A nil
// limiter disables the check.
func RateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			response.ErrorResponse(w, http.StatusTooManyRequests, "Request was throttled.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
