package community

import (
	"errors"
	"net/http"

	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServeList handles GET /get-communities: active communities, newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "community list")
	defer cancel()

	var list []models.Community
	if h.Cache != nil {
		hit, err := h.Cache.GetJSON(ctx, ListCacheKey, &list)
		if err != nil {
			h.Log.Warn("community list cache read failed", zap.Error(err))
		}
		h.Metrics.CacheResult("communities", hit)
		if hit {
			apierr.WriteJSON(w, http.StatusOK, list)
			return
		}
	}

	list, err := h.Communities.ListActive(ctx)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load communities", err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.SetJSON(ctx, ListCacheKey, list, h.CacheTTL); err != nil {
			h.Log.Warn("community list cache write failed", zap.Error(err))
		}
	}
	apierr.WriteJSON(w, http.StatusOK, list)
}

// ServeCommunity handles GET /community/{id}.
func (h *Handler) ServeCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid community id", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "community get")
	defer cancel()

	c, err := h.Communities.GetByID(ctx, id)
	if errors.Is(err, communitystore.ErrNotFound) {
		h.ErrLog.NotFound(w, r, "Community not found")
		return
	}
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load community", err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, c)
}
