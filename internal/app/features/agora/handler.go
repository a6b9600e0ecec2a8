// internal/app/features/agora/handler.go
package agora

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	agoraclient "github.com/dalemusser/commonshub/internal/app/clients/agora"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"go.uber.org/zap"
)

const (
	defaultExpire = time.Hour
	minExpire     = time.Minute
	maxExpire     = 24 * time.Hour
)

// Handler issues RTC tokens for video rooms.
type Handler struct {
	Builder *agoraclient.Builder
	AppID   string
	ErrLog  *apierr.ErrorLogger
	Log     *zap.Logger
}

func NewHandler(b *agoraclient.Builder, appID string, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Builder: b, AppID: appID, ErrLog: errLog, Log: logger}
}

type tokenResponse struct {
	Token       string    `json:"token"`
	AppID       string    `json:"appId"`
	ChannelName string    `json:"channelName"`
	UID         uint32    `json:"uid"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ServeToken handles GET /agora/token. uid 0 (or omitted) lets any user
// join with the token.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := strings.TrimSpace(q.Get("channelName"))
	if channel == "" || len(channel) > 64 {
		h.ErrLog.Invalid(w, r, "channelName is required and at most 64 characters",
			map[string]string{"channelName": "required"})
		return
	}

	var uid uint32
	if s := strings.TrimSpace(q.Get("uid")); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			h.ErrLog.Invalid(w, r, "uid must be a 32-bit unsigned integer", map[string]string{"uid": "invalid"})
			return
		}
		uid = uint32(v)
	}

	role, err := agoraclient.ParseRole(strings.ToLower(strings.TrimSpace(q.Get("role"))))
	if err != nil {
		h.ErrLog.Invalid(w, r, err.Error(), map[string]string{"role": "invalid"})
		return
	}
	roleName := "publisher"
	if role == agoraclient.RoleSubscriber {
		roleName = "subscriber"
	}

	expire := defaultExpire
	if s := strings.TrimSpace(q.Get("expireSeconds")); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil {
			h.ErrLog.Invalid(w, r, "expireSeconds must be a number", map[string]string{"expireSeconds": "invalid"})
			return
		}
		expire = clampExpire(time.Duration(secs) * time.Second)
	}

	token, err := h.Builder.RTCToken(channel, uid, role, expire)
	if errors.Is(err, agoraclient.ErrNotConfigured) {
		apierr.WriteJSON(w, http.StatusServiceUnavailable, apierr.Body{Error: "Video rooms are not configured"})
		return
	}
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to build token", err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:       token,
		AppID:       h.AppID,
		ChannelName: channel,
		UID:         uid,
		Role:        roleName,
		ExpiresAt:   time.Now().Add(expire).UTC().Truncate(time.Second),
	})
}

func clampExpire(d time.Duration) time.Duration {
	switch {
	case d < minExpire:
		return minExpire
	case d > maxExpire:
		return maxExpire
	}
	return d
}
