package main

import (
	"net"
	"net/http"
	"strconv"

	"github.com/aiia-labs/orchestrator/internal/metrics"
	"github.com/aiia-labs/orchestrator/internal/ratelimit"
)

// rateLimitMiddleware rejects clients that exceed their per-IP budget.
// middleware.RealIP must run first so RemoteAddr reflects the client.
func rateLimitMiddleware(store *ratelimit.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := store.Allow(clientIP(r))
			if !ok {
				metrics.RateLimitRejections.WithLabelValues("ip").Inc()
				if wait > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
				}
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later.", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
