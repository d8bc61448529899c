// File: internal/middleware/ratelimit.go
package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/trialforge/protocol-agent/internal/ratelimit"
)

// RateLimitMiddleware guards an endpoint group with the given limiter.
// The name is only used for log lines.
func RateLimitMiddleware(limiter *ratelimit.MemoryRateLimiter, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ratelimit.ClientIP(r)
			allowed, decision := limiter.Allow(clientIP)

			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetTime.Unix()))

			if !allowed {
				log.Printf("[RateLimit] Blocked %s request from %s", name, clientIP)
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%.0f", decision.RetryAfter.Seconds()))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "请求过于频繁，请稍后再试",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
