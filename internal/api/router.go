package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payhub-ph/payhub-backend/internal/api/handlers"
	"github.com/payhub-ph/payhub-backend/internal/config"
	"github.com/payhub-ph/payhub-backend/internal/middleware"
)

type RouterDeps struct {
	Cfg      config.Config
	Auth     *handlers.AuthHandler
	Payments *handlers.PaymentHandler
	Callback *handlers.CallbackHandler
	AuthMW   *middleware.AuthMiddleware
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)
		r.Post("/auth/refresh", d.Auth.Refresh)

		// gateway-facing; authenticated by signature, not by JWT
		r.Post("/payments/callback", d.Callback.Handle)

		r.Group(func(r chi.Router) {
			r.Use(d.AuthMW.Auth)

			r.Post("/payments/deposit", d.Payments.Deposit)
			r.Post("/payments/withdraw", d.Payments.Withdraw)
			r.Get("/payments/{reference}", d.Payments.Get)
			r.Get("/transactions", d.Payments.List)
			r.Get("/balances/current", d.Payments.Balance)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Post("/admin/transactions/{reference}/refund", d.Payments.AdminRefund)
			})
		})
	})

	return r
}
