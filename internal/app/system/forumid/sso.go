package forumid

import (
	"context"
	"errors"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/normalize"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Bridge answers Discourse Connect requests for mapped users.
type Bridge struct {
	Linker *Linker
	Secret string
}

// CommunityFor returns the community named by id, or when id is zero the
// active community whose forum host matches returnURL.
func (b *Bridge) CommunityFor(ctx context.Context, id primitive.ObjectID, returnURL string) (models.Community, error) {
	if !id.IsZero() {
		return b.Linker.community(ctx, id)
	}
	c, err := b.Linker.Communities.GetByDiscourseHost(ctx, normalize.Host(returnURL))
	if errors.Is(err, communitystore.ErrNotFound) {
		return models.Community{}, ErrCommunityNotFound
	}
	return c, err
}

// SignOn builds the signed redirect back to the forum for uid. A pending
// mapping gets one reconciliation attempt first; failure there does not
// block the login.
func (b *Bridge) SignOn(ctx context.Context, req discourse.SSORequest, uid string, communityID primitive.ObjectID) (string, error) {
	l := b.Linker
	c, err := b.CommunityFor(ctx, communityID, req.ReturnSSOURL)
	if err != nil {
		return "", err
	}

	m, err := l.Mappings.Get(ctx, uid, c.ID)
	if err != nil {
		return "", err
	}
	if m.IDPending {
		if _, _, rerr := l.Reconcile(ctx, m); rerr != nil {
			l.Log.Warn("sso reconcile failed", zap.String("uid", uid), zap.Error(rerr))
		}
	}

	u, err := l.Users.GetByUID(ctx, uid)
	if errors.Is(err, userstore.ErrNotFound) {
		return "", ErrNotRegistered
	}
	if err != nil {
		return "", err
	}
	if u.Email == "" {
		return "", ErrMissingEmail
	}

	name := u.Name
	if name == "" {
		name = m.DiscourseUsername
	}
	return discourse.RedirectURL(req.ReturnSSOURL, b.Secret, discourse.SSOIdentity{
		Nonce:      req.Nonce,
		Email:      u.Email,
		ExternalID: uid,
		Username:   m.DiscourseUsername,
		Name:       name,
		AvatarURL:  u.PhotoURL,
	})
}
