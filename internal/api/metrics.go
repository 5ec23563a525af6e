package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// metricsMiddleware records request count and latency by route pattern,
// so /devices/{id} is one series regardless of the id.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	if s.prom == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusWriter(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		s.prom.ObserveHTTP(route, r.Method, wrapped.status, time.Since(start).Seconds())
	})
}
