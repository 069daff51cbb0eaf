/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique ID per request for tracing
  2. httplog:    structured request logging via slog
  3. Recoverer:  panic recovery (500 instead of crash)
  4. CORS:       cross-origin requests for admin frontends
  5. Heartbeat:  /healthz liveness endpoint

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, logger *slog.Logger, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:         slog.LevelInfo,
		RecoverPanics: true,
	}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Scheduler-Secret"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Heartbeat("/healthz"))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/grants", func(r chi.Router) {
			r.Post("/issue", h.IssueGrants)
			r.Post("/manual", h.ManualGrant)
		})

		r.Post("/allocations", h.Allocate)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/{id}/confirm", h.Confirm)
			r.Post("/{id}/release", h.Release)
			r.Post("/{id}/reverse", h.Reverse)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/grants", h.GetGrants)
		})

		r.Get("/audit", h.QueryAudit)
	})

	return r
}
