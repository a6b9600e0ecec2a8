package forum

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/features/community"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/normalize"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ServeSSO handles GET /discourse/sso, the Discourse Connect provider
// endpoint. An anonymous caller is sent to sign in and comes back through
// /discourse/sso/resume.
func (h *Handler) ServeSSO(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sso, sig := q.Get("sso"), q.Get("sig")
	req, err := discourse.ParseRequest(h.Bridge.Secret, sso, sig)
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid SSO request", err)
		return
	}

	uid := h.ssoUID(r, q.Get("userId"))
	if uid == "" {
		h.deferToLogin(w, r, auth.PendingSSO{SSO: sso, Sig: sig, CommunityID: q.Get("communityId")})
		return
	}
	h.signOn(w, r, req, uid, q.Get("communityId"))
}

// ServeResume handles GET /discourse/sso/resume after the SPA has signed
// the user in.
func (h *Handler) ServeResume(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Sessions.TakePendingSSO(w, r)
	if !ok {
		h.ErrLog.BadRequest(w, r, "No pending forum sign-in", nil)
		return
	}
	uid := h.ssoUID(r, "")
	if uid == "" {
		h.ErrLog.Unauthorized(w, r, "Sign in to continue to the forum")
		return
	}
	// The cookie was written by us but the signature is re-checked so a
	// rotated secret cannot replay an old request.
	req, err := discourse.ParseRequest(h.Bridge.Secret, p.SSO, p.Sig)
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid SSO request", err)
		return
	}
	h.signOn(w, r, req, uid, p.CommunityID)
}

// ServeInitiate handles GET /discourse/initiate-sso. It remembers who is
// signing in and starts the forum's SSO flow.
func (h *Handler) ServeInitiate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid, cid, ok := h.parseRef(w, r, memberRef{UserID: q.Get("userId"), CommunityID: q.Get("communityId")})
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "sso initiate")
	defer cancel()

	c, err := h.Bridge.CommunityFor(ctx, cid, "")
	if err != nil {
		community.WriteLinkError(h.ErrLog, w, r, err)
		return
	}
	if err := h.Sessions.RememberUID(w, r, uid); err != nil {
		h.ErrLog.ServerError(w, r, "Failed to save session", err)
		return
	}
	http.Redirect(w, r, strings.TrimRight(c.DiscourseURL, "/")+"/session/sso?return_path=/", http.StatusFound)
}

// ssoUID is the signed-in user, the uid remembered by initiate-sso, or the
// userId query parameter.
func (h *Handler) ssoUID(r *http.Request, queryUID string) string {
	if su, ok := auth.CurrentUser(r); ok && su.UID != "" {
		return su.UID
	}
	if uid := h.Sessions.RememberedUID(r); uid != "" {
		return uid
	}
	return strings.TrimSpace(queryUID)
}

func (h *Handler) deferToLogin(w http.ResponseWriter, r *http.Request, p auth.PendingSSO) {
	if h.LoginURL == "" {
		h.ErrLog.Unauthorized(w, r, "Sign in to continue to the forum")
		return
	}
	if err := h.Sessions.StashPendingSSO(w, p); err != nil {
		h.ErrLog.ServerError(w, r, "Failed to save pending sign-in", err)
		return
	}
	http.Redirect(w, r, h.LoginURL, http.StatusFound)
}

func (h *Handler) signOn(w http.ResponseWriter, r *http.Request, req discourse.SSORequest, uid, communityHex string) {
	var cid primitive.ObjectID
	if communityHex = strings.TrimSpace(communityHex); communityHex != "" {
		id, err := primitive.ObjectIDFromHex(communityHex)
		if err != nil {
			h.ErrLog.BadRequest(w, r, "Invalid community id", err)
			return
		}
		cid = id
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "sso sign-on")
	defer cancel()

	target, err := h.Bridge.SignOn(ctx, req, uid, cid)
	if errors.Is(err, discourse.ErrMalformedSSO) {
		h.ErrLog.BadRequest(w, r, "Invalid return_sso_url", err)
		return
	}
	if err != nil {
		community.WriteLinkError(h.ErrLog, w, r, err)
		return
	}
	h.Log.Info("forum sso", zap.String("uid", uid), zap.String("return_host", normalize.Host(req.ReturnSSOURL)))
	http.Redirect(w, r, target, http.StatusFound)
}
