// internal/app/features/community/routes.go
package community

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the community endpoints at the application root; the
// paths are the ones the SPA already calls. limit guards the writes.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/get-communities", h.ServeList)
	r.Get("/community/{id}", h.ServeCommunity)

	r.Group(func(wr chi.Router) {
		wr.Use(limit)
		wr.Post("/create-community", h.HandleCreate)
		wr.Post("/community/join", h.HandleJoin)
		wr.Post("/community/leave", h.HandleLeave)
	})
	return r
}
