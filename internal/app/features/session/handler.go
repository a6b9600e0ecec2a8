// Package session signs users in from the SPA's identity provider and hands
// back a cookie session plus a short-lived bearer token.
package session

import (
	"errors"
	"net/http"
	"time"

	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/inputval"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

type Handler struct {
	Users    *userstore.Store
	Sessions *auth.SessionManager
	ErrLog   *apierr.ErrorLogger
	Log      *zap.Logger
}

func NewHandler(users *userstore.Store, sm *auth.SessionManager, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Sessions: sm, ErrLog: errLog, Log: logger}
}

type signInRequest struct {
	UID      string `json:"uid" validate:"required,max=128" label:"uid"`
	Email    string `json:"email" validate:"omitempty,email" label:"email"`
	Name     string `json:"name" validate:"max=200" label:"name"`
	PhotoURL string `json:"photo_url" validate:"omitempty,url" label:"photo_url"`
}

type signInResponse struct {
	User      any       `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleSignIn handles POST /auth/session. The user is created on first
// sign-in and their profile refreshed afterwards.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var in signInRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		h.ErrLog.Invalid(w, r, res.First(), res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "session sign-in")
	defer cancel()

	u, err := h.Users.Upsert(ctx, userstore.Profile{UID: in.UID, Email: in.Email, Name: in.Name, PhotoURL: in.PhotoURL})
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to save user", err)
		return
	}

	su := &auth.SessionUser{UID: u.UID, Name: u.Name, Email: u.Email}
	if err := h.Sessions.SignIn(w, r, su); err != nil {
		h.ErrLog.ServerError(w, r, "Failed to start session", err)
		return
	}
	token, exp, err := h.Sessions.IssueToken(su)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to issue token", err)
		return
	}

	h.Log.Info("user signed in", zap.String("uid", u.UID))
	apierr.WriteJSON(w, http.StatusOK, signInResponse{User: u, Token: token, ExpiresAt: exp})
}

// ServeCurrent handles GET /auth/session.
func (h *Handler) ServeCurrent(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "session lookup")
	defer cancel()

	u, err := h.Users.GetByUID(ctx, su.UID)
	if errors.Is(err, userstore.ErrNotFound) {
		h.ErrLog.Unauthorized(w, r, "Session user no longer exists")
		return
	}
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load user", err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

// HandleSignOut handles DELETE /auth/session.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.SignOut(w, r); err != nil {
		h.ErrLog.ServerError(w, r, "Failed to end session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
