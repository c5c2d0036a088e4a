package middleware

import (
	"net"
	"net/http"

	"github.com/kozaktomas/faceid/internal/apperr"
	"github.com/kozaktomas/faceid/internal/auth"
)

// RateLimit rejects requests from clients that exhausted their login budget.
// It keys on RemoteAddr, which chi's RealIP middleware has already resolved.
func RateLimit(l *auth.LoginLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(key); err == nil {
				key = host
			}
			if !l.Allow(key) {
				w.Header().Set("Retry-After", "60")
				writeJSONError(w, http.StatusTooManyRequests,
					apperr.New(apperr.CodeAuthentication, "too many login attempts"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
