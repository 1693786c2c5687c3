package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the query layer. The websocket endpoint is
// unauthenticated, matching the viewer clients; everything else under
// /api requires a bearer token except login.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/api/auth/me", h.Me)
		r.Get("/api/devices", h.ListDevices)
		r.Get("/api/device/latest", h.DeviceLatest)
		r.Get("/api/series", h.Series)
		r.Post("/api/report/xlsx", h.ReportXLSX)
	})

	r.Get("/ws/telemetry", h.Telemetry)

	return r
}
