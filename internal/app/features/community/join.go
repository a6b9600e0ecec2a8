package community

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type membershipRequest struct {
	UserID      string `json:"userId"`
	CommunityID string `json:"communityId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhotoURL    string `json:"photoURL"`
}

type joinResponse struct {
	Message           string `json:"message"`
	CommunityID       string `json:"communityId"`
	DiscourseUsername string `json:"discourseUsername"`
	DiscourseUserID   *int64 `json:"discourseUserId"`
	IDPending         bool   `json:"idPending"`
	NewForumAccount   bool   `json:"newForumAccount"`
}

// member fills in a joining user's profile: body first, then session, then
// the stored user.
func (h *Handler) member(r *http.Request, in membershipRequest) (forumid.Member, error) {
	m := forumid.Member{
		UID:      auth.ResolveUID(r, in.UserID),
		Email:    strings.TrimSpace(in.Email),
		Name:     strings.TrimSpace(in.Name),
		PhotoURL: strings.TrimSpace(in.PhotoURL),
	}
	if su, ok := auth.CurrentUser(r); ok && su.UID == m.UID {
		if m.Email == "" {
			m.Email = su.Email
		}
		if m.Name == "" {
			m.Name = su.Name
		}
	}
	if m.Email == "" || m.Name == "" {
		u, err := h.Users.GetByUID(r.Context(), m.UID)
		if err != nil && !errors.Is(err, userstore.ErrNotFound) {
			return m, err
		}
		if m.Email == "" {
			m.Email = u.Email
		}
		if m.Name == "" {
			m.Name = u.Name
		}
		if m.PhotoURL == "" {
			m.PhotoURL = u.PhotoURL
		}
	}
	return m, nil
}

// HandleJoin handles POST /community/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var in membershipRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	cid, uid, ok := h.parseMembership(w, r, in)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "community join")
	defer cancel()

	m, err := h.member(r.WithContext(ctx), in)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load user", err)
		return
	}
	m.UID = uid

	out, err := h.Linker.Join(ctx, cid, m)
	if err != nil {
		WriteLinkError(h.ErrLog, w, r, err)
		return
	}
	h.invalidateList(ctx)

	h.Log.Info("community joined",
		zap.String("uid", uid),
		zap.String("community_id", cid.Hex()),
		zap.Bool("new_forum_account", out.Created))
	apierr.WriteJSON(w, http.StatusOK, joinResponse{
		Message:           "Joined community successfully",
		CommunityID:       cid.Hex(),
		DiscourseUsername: out.Mapping.DiscourseUsername,
		DiscourseUserID:   out.Resolution.Ptr(),
		IDPending:         out.Resolution.IsPending(),
		NewForumAccount:   out.Created,
	})
}

// HandleLeave handles POST /community/leave. The forum account and mapping
// are kept so a later rejoin reuses them.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var in membershipRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	cid, uid, ok := h.parseMembership(w, r, in)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "community leave")
	defer cancel()

	left, err := h.Users.DetachCommunity(ctx, uid, cid)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to leave community", err)
		return
	}
	if left {
		if err := h.Communities.AddMembers(ctx, cid, -1); err != nil {
			h.ErrLog.ServerError(w, r, "Failed to update member count", err)
			return
		}
		h.invalidateList(ctx)
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{
		"message":     "Left community",
		"communityId": cid.Hex(),
		"left":        left,
	})
}

func (h *Handler) parseMembership(w http.ResponseWriter, r *http.Request, in membershipRequest) (primitive.ObjectID, string, bool) {
	uid := auth.ResolveUID(r, in.UserID)
	if uid == "" || strings.TrimSpace(in.CommunityID) == "" {
		h.ErrLog.Invalid(w, r, "userId and communityId are required", map[string]string{
			"userId": "required", "communityId": "required",
		})
		return primitive.NilObjectID, "", false
	}
	cid, err := primitive.ObjectIDFromHex(strings.TrimSpace(in.CommunityID))
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid community id", err)
		return primitive.NilObjectID, "", false
	}
	return cid, uid, true
}

// WriteLinkError maps forum provisioning failures onto HTTP responses. The
// forum's own validation payload is passed through on 400.
func WriteLinkError(errLog *apierr.ErrorLogger, w http.ResponseWriter, r *http.Request, err error) {
	var ve *discourse.ValidationError
	var ae *discourse.APIError
	switch {
	case errors.Is(err, forumid.ErrCommunityNotFound):
		errLog.NotFound(w, r, "Community not found")
	case errors.Is(err, forumid.ErrNotRegistered):
		errLog.NotFound(w, r, "User is not registered with this community")
	case errors.Is(err, forumid.ErrMissingEmail):
		errLog.Invalid(w, r, err.Error(), map[string]string{"email": "required"})
	case errors.As(err, &ve):
		errLog.Upstream(w, r, http.StatusBadRequest, "Discourse rejected the account", ve.Errors, err)
	case errors.As(err, &ae):
		errLog.Upstream(w, r, http.StatusInternalServerError, "Discourse request failed", ae.Errors, err)
	default:
		errLog.ServerError(w, r, "Failed to link forum account", err)
	}
}
