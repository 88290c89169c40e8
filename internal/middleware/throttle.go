package middleware

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"
)

// Throttle answers 429 once limiter has no token for the request. A nil limiter
// admits everything.
func Throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "reason": "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
