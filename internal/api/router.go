package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.metricsMiddleware)

	if s.metricsCfg.Enabled {
		r.Handle(s.metricsCfg.Path, s.prom.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket carries its token in the query string; validated in handler
		r.Get(wsRoute(s.wsCfg.Path), s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.With(requireRole(roleAdmin)).Post("/onboarding", s.handleOnboard)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/action", s.handleDeviceAction)
				})
			})

			r.Route("/settings/{deviceId}", func(r chi.Router) {
				r.Get("/", s.handleGetSettings)
				r.Patch("/", s.handleUpdateSettings)
				r.Post("/schedules", s.handleUpsertSchedule)
				r.Delete("/schedules/{day}", s.handleDeleteSchedule)
			})

			r.Get("/history", s.handleListHistory)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.handleListNotifications)
				r.Get("/unread-count", s.handleUnreadCount)
				r.Post("/mark-all-as-read", s.handleMarkAllRead)
				r.Patch("/{id}/read", s.handleMarkRead)
				r.Delete("/{id}", s.handleDeleteNotification)
			})
		})
	})

	return r
}

// wsRoute returns the configured websocket path, defaulting to /ws.
func wsRoute(path string) string {
	if path == "" || path[0] != '/' {
		return "/ws"
	}
	return path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"clients": s.hub.ClientCount(),
	})
}
