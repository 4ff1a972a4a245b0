/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin dashboard

ROUTE GROUPS:
  /api/admin/devices/*       Device listing, ban toggle, balance adjustment
  /api/admin/withdrawals/*   Withdrawal listing and settlement
  /api/admin/servers/*       Server catalog CRUD
  /api/admin/sdui/*          SDUI config upsert
  /api/admin/stats           Dashboard stats
  /api/admin/reset           Database reset (dev only)

SECURITY NOTE:
  Admin identity is a caller-supplied principal checked against the
  admins table per request. Session issuance and credential checking
  happen upstream of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api/admin", func(r chi.Router) {
		// Device routes
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.ListDevices)
			r.Post("/{id}/balance", h.AdjustBalance)
			r.Post("/{id}/ban", h.ToggleDeviceBan)
			r.Get("/{id}/logs", h.ListActivityLogs)
		})

		// Withdrawal routes
		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", h.ListWithdrawals)
			r.Post("/{id}/process", h.ProcessWithdrawal)
		})

		// Server catalog routes
		r.Route("/servers", func(r chi.Router) {
			r.Get("/", h.ListServers)
			r.Post("/", h.CreateServer)
			r.Put("/{id}", h.UpdateServer)
			r.Delete("/{id}", h.DeleteServer)
		})

		// SDUI config routes
		r.Put("/sdui/{screenID}", h.UpdateScreenConfig)

		// Dashboard
		r.Get("/stats", h.GetDashboardStats)

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
