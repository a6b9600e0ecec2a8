// internal/app/features/profile/handler.go
package profile

import (
	"errors"
	"net/http"
	"strings"

	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves user profiles.
type Handler struct {
	Users       *userstore.Store
	Communities *communitystore.Store
	Mappings    *mappingstore.Store
	ErrLog      *apierr.ErrorLogger
	Log         *zap.Logger
}

// NewHandler constructs a Handler bound to the given stores and logger.
func NewHandler(users *userstore.Store, communities *communitystore.Store, mappings *mappingstore.Store, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:       users,
		Communities: communities,
		Mappings:    mappings,
		ErrLog:      errLog,
		Log:         logger,
	}
}

// profileView is the user with their communities expanded.
type profileView struct {
	User               models.User        `json:"user"`
	Communities        []models.Community `json:"communities"`
	CreatedCommunities []models.Community `json:"createdCommunities"`
	ForumAccounts      int64              `json:"forumAccounts"`
}

// ServeProfile handles GET /{uid}.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "profile")
	defer cancel()

	u, err := h.Users.GetByUID(ctx, uid)
	if errors.Is(err, userstore.ErrNotFound) {
		h.ErrLog.NotFound(w, r, "User not found")
		return
	}
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load user", err)
		return
	}

	joined, err := h.Communities.GetByIDs(ctx, u.Communities)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load communities", err)
		return
	}
	created, err := h.Communities.GetByIDs(ctx, u.CreatedCommunities)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load communities", err)
		return
	}
	accounts, err := h.Mappings.CountByUser(ctx, uid)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to count forum accounts", err)
		return
	}

	apierr.WriteJSON(w, http.StatusOK, profileView{
		User:               u,
		Communities:        joined,
		CreatedCommunities: created,
		ForumAccounts:      accounts,
	})
}
