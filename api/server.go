/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Recoverer:  Panic recovery (500 instead of crash)
  2. RequestID:  Unique ID per request for tracing
  3. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/accounts/*             Account and balance management
  /api/transactions/*         Immediate ledger entries
  /api/future-transactions/*  Scheduled obligations
  /healthz                    Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Put("/{id}", h.UpdateAccount)
			r.Get("/{id}/balance", h.GetBalance)
			r.Post("/{id}/adjust", h.AdjustBalance)
			r.Post("/{id}/recalculate", h.RecalculateBalance)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/verify", h.VerifyTransaction)
			r.Post("/{id}/void", h.VoidTransaction)
		})

		r.Route("/future-transactions", func(r chi.Router) {
			r.Get("/", h.ListFutures)
			r.Post("/", h.CreateFuture)
			r.Get("/due", h.ListDue)
			r.Get("/{id}", h.GetFuture)
			r.Put("/{id}", h.UpdateFuture)
			r.Post("/{id}/trigger", h.TriggerFuture)
			r.Post("/{id}/scrap", h.ScrapFuture)
		})

		r.Get("/events", h.ListEvents)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
