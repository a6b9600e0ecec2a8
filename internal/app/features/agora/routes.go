// internal/app/features/agora/routes.go
package agora

import "github.com/go-chi/chi/v5"

// Routes is mounted at /agora.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/token", h.ServeToken)
	return r
}
