// internal/app/features/uploads/routes.go
package uploads

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register adds the upload routes to the /api router, which other
// features share.
func Register(r chi.Router, h *Handler, limit func(http.Handler) http.Handler) {
	r.Group(func(g chi.Router) {
		g.Use(limit)
		g.Post("/upload-image", h.HandleImage)
		g.Post("/upload-video", h.HandleVideo)
	})
}
