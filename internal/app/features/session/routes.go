package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the session endpoints (typically under "/auth").
// limit guards the write endpoints.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.With(limit).Post("/session", h.HandleSignIn)
	r.Delete("/session", h.HandleSignOut)
	r.With(h.Sessions.RequireSignedIn).Get("/session", h.ServeCurrent)
	return r
}
