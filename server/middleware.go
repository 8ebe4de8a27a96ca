package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// authConfig holds the admin token configuration.
type authConfig struct {
	adminToken string
	enabled    bool
}

// adminAuth protects admin endpoints with the X-Admin-Token header.
func adminAuth(next http.Handler, cfg *authConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if not configured (dev mode)
		if !cfg.enabled {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Admin-Token")
		if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.adminToken)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		slog.Warn("admin auth failed", slog.String("path", r.URL.Path), slog.String("remote_addr", r.RemoteAddr))
	})
}

// Admin calls reload the registry from the upstream source; one every few seconds is plenty.
const (
	adminRate  = rate.Limit(0.2)
	adminBurst = 3
)

func newAdminLimiter() *rate.Limiter { return rate.NewLimiter(adminRate, adminBurst) }

// rateLimitMiddleware rejects requests once limiter is exhausted.
func rateLimitMiddleware(next http.Handler, limiter *rate.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "5")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			slog.Warn("admin rate limit exceeded", slog.String("path", r.URL.Path), slog.String("remote_addr", r.RemoteAddr))
			return
		}
		next.ServeHTTP(w, r)
	})
}
