package middleware

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"

	"github.com/go-chi/httprate"
)

const rateLimitedCode = "RATE_LIMITED"

// RateLimit limits requests per client IP to requestsPerMinute using a
// sliding window. A non-positive limit disables the middleware.
func RateLimit(scope string, requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			observability.RecordRateLimitDecision(r.Context(), scope, "deny")
			response.Error(w, r, http.StatusTooManyRequests, rateLimitedCode, "too many requests", nil)
		}),
	)
}
