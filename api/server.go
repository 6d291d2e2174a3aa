/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the register frontend

SECURITY NOTE:
  No authentication middleware here. Session handling lives in a gateway
  in front of this service.

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

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// API routes, scoped per tenant
	r.Route("/api/tenants/{tenant}", func(r chi.Router) {
		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.OpenOrder)
			r.Post("/sync", h.SyncOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/items", h.AddItem)
			r.Put("/{id}/items/{index}", h.UpdateQuantity)
			r.Delete("/{id}/items/{index}", h.RemoveItem)
			r.Post("/{id}/complete", h.CompleteOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
			r.Post("/{id}/refund", h.RefundItems)
			r.Post("/{id}/kitchen/advance", h.AdvanceKitchen)
		})

		// Stock routes
		r.Route("/stock", func(r chi.Router) {
			r.Get("/low", h.LowStock)
			r.Post("/{id}/receive", h.ReceiveStock)
			r.Post("/{id}/waste", h.RecordWaste)
			r.Post("/{id}/adjust", h.AdjustStock)
		})

		// Product pricing routes
		r.Route("/products", func(r chi.Router) {
			r.Put("/{id}/price", h.ChangePrice)
			r.Get("/{id}/price-history", h.PriceHistory)
		})

		// Invoice numbering
		r.Post("/invoices", h.IssueInvoice)

		// Closing report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.ListReports)
			r.Post("/close", h.CloseDay)
			r.Get("/verify", h.VerifyReports)
		})

		// Audit trail
		r.Get("/audit", h.AuditEntries)
	})

	return r
}
