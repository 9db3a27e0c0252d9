/**
 * @description
 * This file sets up the HTTP router for the rewards service. It defines the API
 * endpoints, associates them with their handlers, and applies the authentication,
 * admin, and internal-key middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser client.
 */

package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the settings the router needs beyond the handlers.
type RouterConfig struct {
	Auth           AuthConfig
	InternalAPIKey string
	AllowedOrigins []string
}

// NewRouter creates the chi router for the rewards API.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/users", h.handleProvisionUser)
	})

	verifier := NewTokenVerifier(cfg.Auth)
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(verifier, h.service, h.logger))

		r.Get("/me", h.handleGetMe)
		r.Get("/me/completions", h.handleListMyCompletions)
		r.Get("/me/withdrawals", h.handleListMyWithdrawals)

		r.Get("/missions", h.handleListMissions)
		r.Get("/missions/available", h.handleListAvailableMissions)
		r.Post("/missions/{id}/completions", h.handleSubmitCompletion)

		r.Post("/withdrawals", h.handleRequestWithdrawal)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/dashboard", h.handleDashboard)
			r.Get("/users", h.handleListUsers)

			r.Post("/missions", h.handleCreateMission)
			r.Delete("/missions/{id}", h.handleDeleteMission)

			r.Get("/completions/pending", h.handleListPendingCompletions)
			r.Post("/completions/{id}/approve", h.handleApproveCompletion)
			r.Post("/completions/{id}/reject", h.handleRejectCompletion)

			r.Get("/withdrawals/pending", h.handleListPendingWithdrawals)
			r.Post("/withdrawals/{id}/approve", h.handleApproveWithdrawal)
			r.Post("/withdrawals/{id}/reject", h.handleRejectWithdrawal)

			r.Post("/reconcile", h.handleReconcile)
		})
	})

	return r
}
