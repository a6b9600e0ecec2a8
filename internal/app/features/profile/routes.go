// internal/app/features/profile/routes.go
package profile

import "github.com/go-chi/chi/v5"

// Routes is mounted at /api/users.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/{uid}", h.ServeProfile)
	return r
}
