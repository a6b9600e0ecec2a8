package forumid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/app/system/sealer"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	ErrCommunityNotFound = errors.New("community not found")
	ErrNotRegistered     = mappingstore.ErrNotFound
	ErrMissingEmail      = errors.New("an email address is required to create a forum account")
)

// Forum is the admin surface of one Discourse instance used for provisioning.
// *discourse.Client satisfies it.
type Forum interface {
	CreateUser(ctx context.Context, u discourse.NewUser) (discourse.CreateUserResult, error)
	GetUser(ctx context.Context, username string) (discourse.User, error)
	SearchActiveUsers(ctx context.Context, filter string) ([]discourse.User, error)
}

// Linker provisions forum accounts and keeps mappings, users and
// community counters in step. Each step is a separate write; a failed call
// can be retried from the start.
type Linker struct {
	Mappings    *mappingstore.Store
	Users       *userstore.Store
	Communities *communitystore.Store
	Sealer      *sealer.Sealer

	// Forum returns the admin client for a community's forum base URL.
	Forum func(baseURL string) Forum

	Metrics *metrics.Registry
	Log     *zap.Logger

	now func() time.Time
}

// Member is who is joining or registering.
type Member struct {
	UID      string
	Email    string
	Name     string
	PhotoURL string
}

func (m Member) profile() userstore.Profile {
	return userstore.Profile{UID: m.UID, Email: m.Email, Name: m.Name, PhotoURL: m.PhotoURL}
}

// Outcome describes a Register or Join.
type Outcome struct {
	Community  models.Community
	Mapping    models.DiscourseUserMapping
	Created    bool // a forum account was created by this call
	Resolution Resolution
}

func (l *Linker) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *Linker) community(ctx context.Context, id primitive.ObjectID) (models.Community, error) {
	c, err := l.Communities.GetByID(ctx, id)
	if errors.Is(err, communitystore.ErrNotFound) {
		return models.Community{}, ErrCommunityNotFound
	}
	return c, err
}

// Register provisions a forum account for m in the community. A member who
// already has a mapping gets it back with Created false and nothing else is
// written.
func (l *Linker) Register(ctx context.Context, communityID primitive.ObjectID, m Member) (Outcome, error) {
	c, err := l.community(ctx, communityID)
	if err != nil {
		return Outcome{}, err
	}
	out, err := l.provision(ctx, c, m)
	if err != nil || !out.Created {
		return out, err
	}
	if err := l.attach(ctx, out, m); err != nil {
		return out, err
	}
	return out, nil
}

// Join finds or provisions the mapping, then records membership on the user
// and bumps the community counter. The counter bump is unconditional.
func (l *Linker) Join(ctx context.Context, communityID primitive.ObjectID, m Member) (Outcome, error) {
	c, err := l.community(ctx, communityID)
	if err != nil {
		return Outcome{}, err
	}
	out, err := l.provision(ctx, c, m)
	if err != nil {
		return out, err
	}
	if err := l.attach(ctx, out, m); err != nil {
		return out, err
	}
	if l.Metrics != nil {
		l.Metrics.Joins.Inc()
	}
	return out, nil
}

func (l *Linker) attach(ctx context.Context, out Outcome, m Member) error {
	if err := l.Users.AttachCommunity(ctx, m.profile(), out.Mapping.Identity()); err != nil {
		return fmt.Errorf("attach community: %w", err)
	}
	if err := l.Communities.AddMembers(ctx, out.Community.ID, 1); err != nil {
		return fmt.Errorf("increment members: %w", err)
	}
	return nil
}

// provision returns the existing mapping for (m, c) or creates the forum
// account and a new mapping. Losing an insert race to a concurrent call
// returns the winner's mapping.
func (l *Linker) provision(ctx context.Context, c models.Community, m Member) (Outcome, error) {
	out := Outcome{Community: c}

	existing, err := l.Mappings.Get(ctx, m.UID, c.ID)
	if err == nil {
		out.Mapping = existing
		out.Resolution = resolutionOf(existing)
		return out, nil
	}
	if !errors.Is(err, mappingstore.ErrNotFound) {
		return out, err
	}

	email := strings.TrimSpace(m.Email)
	if email == "" {
		return out, ErrMissingEmail
	}

	username := UsernameFor(email, l.clock())
	password, err := NewPassword()
	if err != nil {
		return out, err
	}

	forum := l.Forum(c.DiscourseURL)
	created, err := forum.CreateUser(ctx, discourse.NewUser{
		Name:     m.Name,
		Email:    email,
		Password: password,
		Username: username,
		Active:   true,
		Approved: true,
	})
	if err != nil {
		l.countCall("create_user", err)
		return out, err
	}
	l.countCall("create_user", nil)

	res := l.resolve(ctx, forum, created.UserID, username, email)

	sealed, err := l.Sealer.Seal(password)
	if err != nil {
		return out, err
	}

	mapping, err := l.Mappings.Insert(ctx, models.DiscourseUserMapping{
		UserID:            m.UID,
		CommunityID:       c.ID,
		DiscourseUserID:   res.Ptr(),
		DiscourseUsername: username,
		DiscoursePassword: sealed,
	})
	if errors.Is(err, mappingstore.ErrAlreadyMapped) {
		l.Log.Warn("forum mapping raced, using existing",
			zap.String("uid", m.UID), zap.String("community_id", c.ID.Hex()), zap.String("orphan_username", username))
		existing, gerr := l.Mappings.Get(ctx, m.UID, c.ID)
		if gerr != nil {
			return out, gerr
		}
		out.Mapping = existing
		out.Resolution = resolutionOf(existing)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("insert mapping: %w", err)
	}

	out.Mapping = mapping
	out.Resolution = res
	out.Created = true
	l.Log.Info("forum account provisioned",
		zap.String("uid", m.UID),
		zap.String("community_id", c.ID.Hex()),
		zap.String("username", username),
		zap.String("tier", string(res.Tier())))
	return out, nil
}

// resolve walks the tiers: the id from the create response, the user
// lookup by username, the admin list filtered by email. Lookup failures
// fall through to the next tier.
func (l *Linker) resolve(ctx context.Context, forum Forum, createdID *int64, username, email string) Resolution {
	res := l.lookup(ctx, forum, createdID, username, email)
	if l.Metrics != nil {
		l.Metrics.ForumResolutions.WithLabelValues(string(res.Tier())).Inc()
	}
	return res
}

func (l *Linker) lookup(ctx context.Context, forum Forum, createdID *int64, username, email string) Resolution {
	if createdID != nil && *createdID > 0 {
		return Resolved(*createdID, TierDirect)
	}

	u, err := forum.GetUser(ctx, username)
	l.countCall("get_user", err)
	if err == nil && u.ID > 0 {
		return Resolved(u.ID, TierDirect)
	}
	if err != nil && !discourse.IsNotFound(err) {
		l.Log.Debug("forum user lookup failed", zap.String("username", username), zap.Error(err))
	}

	if email != "" {
		users, err := forum.SearchActiveUsers(ctx, email)
		l.countCall("search_users", err)
		if err != nil {
			l.Log.Debug("forum admin search failed", zap.String("username", username), zap.Error(err))
		}
		for _, cand := range users {
			if cand.ID > 0 && (strings.EqualFold(cand.Username, username) || strings.EqualFold(cand.Email, email)) {
				return Resolved(cand.ID, TierAdminSearch)
			}
		}
	}
	return Pending()
}

// Reconcile retries resolution for a pending mapping. It reports whether
// the mapping is resolved when it returns.
func (l *Linker) Reconcile(ctx context.Context, m models.DiscourseUserMapping) (models.DiscourseUserMapping, bool, error) {
	if !m.IDPending {
		return m, true, nil
	}
	c, err := l.community(ctx, m.CommunityID)
	if err != nil {
		return m, false, err
	}

	var email string
	if u, err := l.Users.GetByUID(ctx, m.UserID); err == nil {
		email = u.Email
	} else if !errors.Is(err, userstore.ErrNotFound) {
		return m, false, err
	}

	res := l.resolve(ctx, l.Forum(c.DiscourseURL), nil, m.DiscourseUsername, email)
	id, ok := res.ID()
	if !ok {
		if err := l.Mappings.TouchPending(ctx, m.ID); err != nil {
			return m, false, err
		}
		return m, false, nil
	}

	if _, err := l.Mappings.ResolvePending(ctx, m.ID, id); err != nil {
		return m, false, err
	}
	if err := l.Users.SetIdentityID(ctx, m.UserID, m.CommunityID, id); err != nil {
		return m, false, err
	}
	m.DiscourseUserID = &id
	m.IDPending = false
	l.Log.Info("forum id reconciled",
		zap.String("uid", m.UserID), zap.String("community_id", m.CommunityID.Hex()), zap.Int64("discourse_user_id", id))
	return m, true, nil
}

// ReconcilePending retries up to limit pending mappings and returns how many
// were resolved. A failure on one mapping is logged and the rest continue.
func (l *Linker) ReconcilePending(ctx context.Context, limit int) (int, error) {
	pending, err := l.Mappings.ListPending(ctx, int64(limit))
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, m := range pending {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		_, ok, err := l.Reconcile(ctx, m)
		if err != nil {
			l.Log.Warn("reconcile mapping failed", zap.String("mapping_id", m.ID.Hex()), zap.Error(err))
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (l *Linker) countCall(op string, err error) {
	if l.Metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	l.Metrics.ForumCalls.WithLabelValues(op, outcome).Inc()
}

func resolutionOf(m models.DiscourseUserMapping) Resolution {
	if m.IDPending || m.DiscourseUserID == nil {
		return Pending()
	}
	return Resolved(*m.DiscourseUserID, TierDirect)
}
