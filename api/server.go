/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. Timeout:    Bounds every request, which also bounds wallet lock waits
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/pricing/*        Rate catalog and quotes
  /api/wallets/*        Balances, history, money movement
  /api/cash-deposits/*  Staff cash validation
  /api/payments/*       Gateway webhook
  /api/incidents/*      Deposit charges
  /api/rides/*          Session lifecycle
  /api/bikes/*          Fleet state
  /api/scenarios/*      Demo data loaders (development)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.
  Front with an authenticating proxy before exposing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

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
	// The timeout doubles as the bound on wallet lock acquisition: a
	// request stuck behind a wallet lock fails with 503 instead of
	// queueing forever.
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Pricing routes
		r.Route("/pricing", func(r chi.Router) {
			r.Get("/", h.GetPricingConfig)
			r.Put("/", h.PutPricingConfig)
			r.Get("/current", h.GetCurrentPricing)
			r.Get("/quote", h.QuotePricing)
		})

		// Wallet routes
		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", h.CreateWallet)
			r.Get("/{userID}", h.GetWallet)
			r.Get("/{userID}/transactions", h.GetTransactions)
			r.Get("/{userID}/audit", h.GetAuditTrail)
			r.Post("/{userID}/credits", h.CreditWallet)
			r.Post("/{userID}/withdrawals", h.WithdrawWallet)
			r.Post("/{userID}/cash-deposits", h.RequestCashDeposit)
		})

		// Cash validation routes
		r.Route("/cash-deposits", func(r chi.Router) {
			r.Post("/{txID}/validate", h.ValidateCashDeposit)
			r.Post("/{txID}/reject", h.RejectCashDeposit)
		})

		// Payment gateway webhook
		r.Post("/payments/callback", h.PaymentCallback)

		// Incident routes
		r.Route("/incidents", func(r chi.Router) {
			r.Post("/", h.CreateIncident)
			r.Delete("/{id}", h.DeleteIncident)
		})

		// Ride routes
		r.Route("/rides", func(r chi.Router) {
			r.Post("/start", h.StartRide)
			r.Post("/{id}/end", h.EndRide)
			r.Post("/{id}/cancel", h.CancelRide)
			r.Post("/{id}/settle", h.SettleRide)
		})

		// Per-user history views
		r.Get("/users/{userID}/rides", h.ListUserRides)
		r.Get("/users/{userID}/incidents", h.ListUserIncidents)

		// Bike routes
		r.Route("/bikes", func(r chi.Router) {
			r.Get("/", h.ListBikes)
			r.Post("/", h.SaveBike)
		})

		// Demo scenarios (development only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
