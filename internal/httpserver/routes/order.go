package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/deps"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/mw"
)

func init() { Register(registerOrder) }

func registerOrder(r chi.Router, d deps.Deps) {
	limit := mw.RateLimit(mw.RateLimitConfig{
		Burst:        d.IntakeBurst,
		RefillPerMin: d.IntakeRefillMin,
		TrustProxy:   d.TrustProxy,
	})

	r.With(limit).Post("/order", handlers.CreateOrder(d))
	r.Get("/order/{id}", handlers.GetOrder(d))
}
