// internal/app/features/forum/handler.go
package forum

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/features/community"
	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/cache"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the /discourse routes: account registration, the SSO
// provider endpoints and posting as a member's forum account.
type Handler struct {
	Linker   *forumid.Linker
	Bridge   *forumid.Bridge
	Sessions *auth.SessionManager

	// Client returns the admin client for a forum base URL.
	Client func(baseURL string) *discourse.Client

	Cache    cache.Cache
	CacheTTL time.Duration
	Metrics  *metrics.Registry

	// LoginURL is where an anonymous SSO request is sent to sign in.
	LoginURL string

	ErrLog *apierr.ErrorLogger
	Log    *zap.Logger
}

// Config carries the handler's collaborators.
type Config struct {
	Linker   *forumid.Linker
	Bridge   *forumid.Bridge
	Sessions *auth.SessionManager
	Client   func(baseURL string) *discourse.Client
	Cache    cache.Cache
	CacheTTL time.Duration
	Metrics  *metrics.Registry
	LoginURL string
}

func NewHandler(cfg Config, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Linker:   cfg.Linker,
		Bridge:   cfg.Bridge,
		Sessions: cfg.Sessions,
		Client:   cfg.Client,
		Cache:    cfg.Cache,
		CacheTTL: cfg.CacheTTL,
		Metrics:  cfg.Metrics,
		LoginURL: cfg.LoginURL,
		ErrLog:   errLog,
		Log:      logger,
	}
}

// memberRef names a user and community, from a JSON body or the query.
type memberRef struct {
	UserID      string `json:"userId"`
	CommunityID string `json:"communityId"`
}

// parseRef resolves the acting uid and community id, writing a 400 when
// either is missing or malformed.
func (h *Handler) parseRef(w http.ResponseWriter, r *http.Request, ref memberRef) (string, primitive.ObjectID, bool) {
	uid := auth.ResolveUID(r, ref.UserID)
	cidHex := strings.TrimSpace(ref.CommunityID)
	if uid == "" || cidHex == "" {
		h.ErrLog.Invalid(w, r, "userId and communityId are required", map[string]string{
			"userId": "required", "communityId": "required",
		})
		return "", primitive.NilObjectID, false
	}
	cid, err := primitive.ObjectIDFromHex(cidHex)
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid community id", err)
		return "", primitive.NilObjectID, false
	}
	return uid, cid, true
}

// actor loads the mapping and community needed to act as uid on the forum.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request, uid string, cid primitive.ObjectID) (models.Community, models.DiscourseUserMapping, bool) {
	ctx := r.Context()
	c, err := h.Bridge.CommunityFor(ctx, cid, "")
	if err != nil {
		community.WriteLinkError(h.ErrLog, w, r, err)
		return models.Community{}, models.DiscourseUserMapping{}, false
	}
	m, err := h.Linker.Mappings.Get(ctx, uid, cid)
	if errors.Is(err, mappingstore.ErrNotFound) {
		h.ErrLog.NotFound(w, r, "User is not registered with this community")
		return c, m, false
	}
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load forum account", err)
		return c, m, false
	}
	return c, m, true
}

// writeForumError reports a failed content call, passing the forum's
// own messages through.
func (h *Handler) writeForumError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.count(op, err)
	var ae *discourse.APIError
	if errors.As(err, &ae) {
		status := http.StatusInternalServerError
		if ae.Status >= 400 && ae.Status < 500 {
			status = http.StatusBadRequest
		}
		if discourse.IsNotFound(err) {
			status = http.StatusNotFound
		}
		h.ErrLog.Upstream(w, r, status, "Discourse request failed", ae.Errors, err)
		return
	}
	h.ErrLog.ServerError(w, r, "Discourse request failed", err)
}

func (h *Handler) count(op string, err error) {
	if h.Metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.Metrics.ForumCalls.WithLabelValues(op, outcome).Inc()
}
