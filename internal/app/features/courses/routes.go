// internal/app/features/courses/routes.go
package courses

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes is mounted at /api/communities/{communityId}/courses.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Get("/{courseId}", h.ServeCourse)

	r.Group(func(wr chi.Router) {
		wr.Use(limit)
		wr.Post("/", h.HandleCreate)
		wr.Put("/{courseId}", h.HandleUpdate)
		wr.Delete("/{courseId}", h.HandleDelete)
	})
	return r
}
