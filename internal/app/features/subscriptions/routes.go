// internal/app/features/subscriptions/routes.go
package subscriptions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register adds the subscription routes to the /api router.
func Register(r chi.Router, h *Handler, limit func(http.Handler) http.Handler) {
	r.Get("/user-subscription/{uid}", h.ServeStatus)
	r.Group(func(g chi.Router) {
		g.Use(limit)
		g.Post("/create-subscription", h.HandleCreate)
		g.Post("/verify-payment", h.HandleVerify)
		g.Post("/cancel-subscription", h.HandleCancel)
	})
}
