package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/deps"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/mw"
)

func init() { Register(registerReadyz) }

func registerReadyz(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnly(d.ReadyzCIDRs, d.TrustProxy, d.Logger)).Get("/readyz", handlers.Readyz(d))
}
