/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:    Request logging
  2. Recoverer: Panic recovery (500 instead of crash)
  3. RequestID: Unique ID per request for tracing
  4. CORS:      Cross-origin requests for the accounting frontend
  5. Auth:      JWT bearer validation (everything under /api)

ROUTE GROUPS:
  /api/contract-payments/*  Record lifecycle and payments
  /api/reports/*            Accounting exports
  /health                   Unauthenticated liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: JWT middleware
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
func NewRouter(h *Handler, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Route("/contract-payments", func(r chi.Router) {
			r.Post("/", h.CreateContractPayment)
			r.Get("/", h.ListContractPayments)
			r.Get("/{id}", h.GetContractPayment)

			// Contract review flow
			r.Post("/{id}/request-info", h.RequestInfo)
			r.Post("/{id}/submit", h.Submit)
			r.Post("/{id}/verify", h.Verify)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/approve", h.Approve)

			// Billing and payment flow
			r.Post("/{id}/start-billing", h.StartBilling)
			r.Post("/{id}/invoice", h.CreateInvoice)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Get("/{id}/payments", h.ListPayments)
			r.Get("/{id}/invoice.pdf", h.InvoicePDF)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/contract-payments.xlsx", h.ContractPaymentsReport)
		})
	})

	return r
}
