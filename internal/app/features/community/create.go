package community

import (
	"net/http"
	"strings"

	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/commonshub/internal/app/system/inputval"
	"github.com/dalemusser/commonshub/internal/app/system/normalize"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"go.uber.org/zap"
)

type createRequest struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Category     string                  `json:"category"`
	DiscourseURL string                  `json:"discourse_url"`
	Creator      models.CommunityCreator `json:"creator"`
}

// HandleCreate handles POST /create-community. The signed-in user is the
// creator unless the body names one.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}

	creator := in.Creator
	creator.UID = auth.ResolveUID(r, creator.UID)
	if su, ok := auth.CurrentUser(r); ok && su.UID == creator.UID {
		if creator.Name == "" {
			creator.Name = su.Name
		}
		if creator.Email == "" {
			creator.Email = su.Email
		}
	}
	creator.Email = normalize.Email(creator.Email)

	c := models.Community{
		Name:         normalize.Name(in.Name),
		Description:  htmlsanitize.PlainText(in.Description),
		Category:     strings.TrimSpace(in.Category),
		DiscourseURL: strings.TrimRight(strings.TrimSpace(in.DiscourseURL), "/"),
		Creator:      creator,
	}
	if res := inputval.Validate(c); res.HasErrors() {
		h.ErrLog.Invalid(w, r, res.First(), res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "community create")
	defer cancel()

	created, err := h.Communities.Create(ctx, c)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to create community", err)
		return
	}
	profile := userstore.Profile{UID: creator.UID, Email: creator.Email, Name: creator.Name}
	if err := h.Users.AddCreatedCommunity(ctx, profile, created.ID); err != nil {
		// The community exists; only the creator's back-reference is missing.
		h.Log.Warn("failed to record created community on user",
			zap.String("uid", creator.UID), zap.String("community_id", created.ID.Hex()), zap.Error(err))
	}
	h.invalidateList(ctx)

	h.Log.Info("community created",
		zap.String("community_id", created.ID.Hex()),
		zap.String("slug", created.Slug),
		zap.String("creator", creator.UID))
	apierr.WriteJSON(w, http.StatusCreated, map[string]any{
		"message":     "Community created successfully",
		"communityId": created.ID.Hex(),
		"community":   created,
	})
}
