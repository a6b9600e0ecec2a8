package forum

import (
	"net/http"
	"strings"

	"github.com/dalemusser/commonshub/internal/app/features/community"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
)

type registerRequest struct {
	memberRef
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

type accountResponse struct {
	Message           string `json:"message,omitempty"`
	UserID            string `json:"userId"`
	CommunityID       string `json:"communityId"`
	DiscourseUsername string `json:"discourseUsername"`
	DiscourseUserID   *int64 `json:"discourseUserId"`
	IDPending         bool   `json:"idPending"`
	AlreadyRegistered bool   `json:"alreadyRegistered,omitempty"`
}

// HandleRegister handles POST /discourse/register. A new forum account
// answers 201; an existing mapping answers 200 and nothing is written.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	uid, cid, ok := h.parseRef(w, r, in.memberRef)
	if !ok {
		return
	}
	m := forumid.Member{
		UID:      uid,
		Email:    strings.TrimSpace(in.Email),
		Name:     strings.TrimSpace(in.Name),
		PhotoURL: strings.TrimSpace(in.PhotoURL),
	}
	if su, ok := auth.CurrentUser(r); ok && su.UID == uid {
		if m.Email == "" {
			m.Email = su.Email
		}
		if m.Name == "" {
			m.Name = su.Name
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "forum register")
	defer cancel()

	out, err := h.Linker.Register(ctx, cid, m)
	if err != nil {
		community.WriteLinkError(h.ErrLog, w, r, err)
		return
	}

	resp := accountResponse{
		UserID:            uid,
		CommunityID:       cid.Hex(),
		DiscourseUsername: out.Mapping.DiscourseUsername,
		DiscourseUserID:   out.Resolution.Ptr(),
		IDPending:         out.Resolution.IsPending(),
	}
	if !out.Created {
		resp.Message = "User already registered with this community"
		resp.AlreadyRegistered = true
		apierr.WriteJSON(w, http.StatusOK, resp)
		return
	}
	resp.Message = "Discourse account created"
	apierr.WriteJSON(w, http.StatusCreated, resp)
}

// ServeUser handles GET /discourse/user?userId=&communityId=.
func (h *Handler) ServeUser(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid, cid, ok := h.parseRef(w, r, memberRef{UserID: q.Get("userId"), CommunityID: q.Get("communityId")})
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "forum user")
	defer cancel()

	_, m, ok := h.actor(w, r.WithContext(ctx), uid, cid)
	if !ok {
		return
	}
	apierr.WriteJSON(w, http.StatusOK, accountResponse{
		UserID:            uid,
		CommunityID:       cid.Hex(),
		DiscourseUsername: m.DiscourseUsername,
		DiscourseUserID:   m.DiscourseUserID,
		IDPending:         m.IDPending,
	})
}
