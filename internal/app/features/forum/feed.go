package forum

import (
	"errors"
	"net/http"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/features/community"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Feed is a community's forum front page.
type Feed struct {
	CommunityID string               `json:"communityId"`
	ForumURL    string               `json:"forumUrl"`
	Topics      []discourse.Topic    `json:"topics"`
	Categories  []discourse.Category `json:"categories"`
}

func feedKey(communityID string) string { return "feed:" + communityID }

// ServeFeed handles GET /discourse/communities/{communityId}/feed. Topics
// and categories are fetched concurrently and cached together.
func (h *Handler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	cid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "communityId"))
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid community id", err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "forum feed")
	defer cancel()

	key := feedKey(cid.Hex())
	if h.Cache != nil {
		var cached Feed
		hit, err := h.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			h.Log.Warn("feed cache read failed", zap.Error(err))
		}
		h.Metrics.CacheResult("feed", hit)
		if hit {
			apierr.WriteJSON(w, http.StatusOK, cached)
			return
		}
	}

	c, err := h.Bridge.CommunityFor(ctx, cid, "")
	if err != nil {
		community.WriteLinkError(h.ErrLog, w, r, err)
		return
	}

	client := h.Client(c.DiscourseURL)
	feed := Feed{CommunityID: cid.Hex(), ForumURL: c.DiscourseURL}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		topics, err := client.Latest(gctx)
		feed.Topics = topics
		return err
	})
	g.Go(func() error {
		cats, err := client.Categories(gctx)
		feed.Categories = cats
		return err
	})
	if err := g.Wait(); err != nil {
		var ae *discourse.APIError
		if errors.As(err, &ae) {
			h.writeForumError(w, r, "feed", err)
			return
		}
		h.count("feed", err)
		h.ErrLog.ServerError(w, r, "Failed to load forum feed", err)
		return
	}
	h.count("feed", nil)
	if feed.Topics == nil {
		feed.Topics = []discourse.Topic{}
	}
	if feed.Categories == nil {
		feed.Categories = []discourse.Category{}
	}

	if h.Cache != nil {
		if err := h.Cache.SetJSON(ctx, key, feed, h.CacheTTL); err != nil {
			h.Log.Warn("feed cache write failed", zap.Error(err))
		}
	}
	apierr.WriteJSON(w, http.StatusOK, feed)
}

func (h *Handler) invalidateFeed(r *http.Request, communityID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Delete(r.Context(), feedKey(communityID)); err != nil {
		h.Log.Warn("feed cache invalidation failed", zap.Error(err))
	}
}
