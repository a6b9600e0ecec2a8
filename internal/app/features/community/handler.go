// internal/app/features/community/handler.go
package community

import (
	"context"
	"time"

	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/cache"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"go.uber.org/zap"
)

// ListCacheKey holds the active community listing.
const ListCacheKey = "communities:active"

// Handler serves community listing, creation, join and leave.
type Handler struct {
	Communities *communitystore.Store
	Users       *userstore.Store
	Linker      *forumid.Linker
	Cache       cache.Cache
	CacheTTL    time.Duration
	Metrics     *metrics.Registry
	ErrLog      *apierr.ErrorLogger
	Log         *zap.Logger
}

func NewHandler(communities *communitystore.Store, users *userstore.Store, linker *forumid.Linker, c cache.Cache, ttl time.Duration, m *metrics.Registry, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Communities: communities,
		Users:       users,
		Linker:      linker,
		Cache:       c,
		CacheTTL:    ttl,
		Metrics:     m,
		ErrLog:      errLog,
		Log:         logger,
	}
}

// invalidateList drops the cached listing after any membership change.
// A failure only leaves the listing stale until the TTL passes.
func (h *Handler) invalidateList(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Delete(ctx, ListCacheKey); err != nil {
		h.Log.Warn("community list cache invalidation failed", zap.Error(err))
	}
}
