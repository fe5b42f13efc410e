// File: internal/middleware/ratelimit.go
package middleware

import (
	"fmt"
	"net/http"

	"github.com/iyunix/go-telemed/internal/ratelimit"
)

// RateLimit rejects clients that exceed the limiter with 429. Successful
// (2xx) responses reset the client's counter.
func RateLimit(limiter *ratelimit.Limiter, name string, log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ratelimit.ClientIP(r)
			key := name + ":" + clientIP

			decision := limiter.Allow(key)
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
			if !decision.Allowed {
				log.Warn("[RateLimit] blocked", "route", name, "client", clientIP)
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", decision.RetryAfter.Seconds()))
				writeEnvelopeError(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
				return
			}

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			if rec.status >= 200 && rec.status < 300 {
				limiter.Reset(key)
			}
		})
	}
}
