package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gregor-bridge/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Authenticates itself: ticket or bearer token.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceRead))

				r.Post("/auth/ws-ticket", s.handleWSTicket)
				r.Get("/metrics", s.handleMetrics)

				r.Get("/devices", s.handleListDevices)
				r.Get("/devices/{device}", s.handleGetDevice)
				r.Get("/devices/{device}/sensors", s.handleGetSensors)
				r.Get("/rooms", s.handleListRooms)
			})

			r.Group(func(r chi.Router) {
				r.Use(requirePermission(auth.PermDeviceOperate))

				r.Post("/drives/{id}/open", s.handleOpenDrive)
				r.Post("/drives/{id}/close", s.handleCloseDrive)
				r.Put("/rooms/{id}/mode", s.handleSetRoomMode)
				r.Post("/devices/{device}/refresh", s.handleRefreshDevice)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
