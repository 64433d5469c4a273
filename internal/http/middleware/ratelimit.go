package middleware

import (
	"net"
	"net/http"
)

// Limiter decides whether a request keyed by caller may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimit rejects callers that exceed limiter with 429. Callers are keyed
// by remote IP, which chi's RealIP middleware has already resolved.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
