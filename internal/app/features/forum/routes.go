// internal/app/features/forum/routes.go
package forum

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /discourse.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/sso", h.ServeSSO)
	r.Get("/sso/resume", h.ServeResume)
	r.Get("/initiate-sso", h.ServeInitiate)
	r.Get("/user", h.ServeUser)
	r.Get("/communities/{communityId}/feed", h.ServeFeed)

	r.Group(func(wr chi.Router) {
		wr.Use(limit)
		wr.Post("/register", h.HandleRegister)
		wr.Post("/posts", h.HandleCreatePost)
		wr.Post("/posts/{id}/replies", h.HandleReply)
		wr.Post("/posts/{id}/like", h.HandleLike)
	})
	return r
}
