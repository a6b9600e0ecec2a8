package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/commonshub/internal/app/system/normalize"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no user has the given uid.
var ErrNotFound = errors.New("user not found")

type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users"), now: func() time.Time { return time.Now().UTC() }}
}

// Profile is the identity the SPA sends on sign-in or with a join request.
type Profile struct {
	UID      string
	Email    string
	Name     string
	PhotoURL string
}

// profileSet returns the $set and $setOnInsert parts for p. Empty fields
// never overwrite stored values.
func (s *Store) profileSet(p Profile) (set, onInsert bson.M) {
	now := s.now()
	set = bson.M{"updated_at": now}
	onInsert = bson.M{"uid": p.UID, "created_at": now}
	if e := normalize.Email(p.Email); e != "" {
		set["email"] = e
	}
	if n := normalize.Name(p.Name); n != "" {
		set["name"] = n
		set["name_ci"] = text.Fold(n)
	}
	if p.PhotoURL != "" {
		set["photo_url"] = p.PhotoURL
	}
	return set, onInsert
}

// Upsert creates the user on first sight and refreshes profile fields
// afterwards. It returns the stored document.
func (s *Store) Upsert(ctx context.Context, p Profile) (models.User, error) {
	set, onInsert := s.profileSet(p)
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var u models.User
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"uid": p.UID},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		opts,
	).Decode(&u)
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

// GetByUID loads a user by uid.
func (s *Store) GetByUID(ctx context.Context, uid string) (models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"uid": uid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

// AttachCommunity upserts the user, adds communityID to the communities set
// and records the forum identity for that community. Repeating the call
// leaves exactly one entry of each.
func (s *Store) AttachCommunity(ctx context.Context, p Profile, ident models.DiscourseIdentity) error {
	set, onInsert := s.profileSet(p)
	_, err := s.c.UpdateOne(ctx,
		bson.M{"uid": p.UID},
		bson.M{
			"$set":         set,
			"$setOnInsert": onInsert,
			"$addToSet":    bson.M{"communities": ident.CommunityID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	return s.putIdentity(ctx, p.UID, ident)
}

// putIdentity pushes ident if the user has none for its community, else
// replaces the existing one in place.
func (s *Store) putIdentity(ctx context.Context, uid string, ident models.DiscourseIdentity) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"uid": uid, "discourse_users.community_id": bson.M{"$ne": ident.CommunityID}},
		bson.M{"$push": bson.M{"discourse_users": ident}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	_, err = s.c.UpdateOne(ctx,
		bson.M{"uid": uid, "discourse_users.community_id": ident.CommunityID},
		bson.M{"$set": bson.M{"discourse_users.$": ident, "updated_at": s.now()}},
	)
	return err
}

// SetIdentityID fills the forum id of an identity that was pending.
func (s *Store) SetIdentityID(ctx context.Context, uid string, communityID primitive.ObjectID, forumID int64) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"uid": uid, "discourse_users.community_id": communityID},
		bson.M{"$set": bson.M{"discourse_users.$.discourse_user_id": forumID, "updated_at": s.now()}},
	)
	return err
}

// DetachCommunity removes communityID from the user's communities. It
// reports whether the user was a member.
func (s *Store) DetachCommunity(ctx context.Context, uid string, communityID primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"uid": uid, "communities": communityID},
		bson.M{
			"$pull": bson.M{"communities": communityID},
			"$set":  bson.M{"updated_at": s.now()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// AddCreatedCommunity records communityID as created by the user.
func (s *Store) AddCreatedCommunity(ctx context.Context, p Profile, communityID primitive.ObjectID) error {
	set, onInsert := s.profileSet(p)
	_, err := s.c.UpdateOne(ctx,
		bson.M{"uid": p.UID},
		bson.M{
			"$set":         set,
			"$setOnInsert": onInsert,
			"$addToSet":    bson.M{"created_communities": communityID},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// StartSubscription records a freshly created gateway subscription.
func (s *Store) StartSubscription(ctx context.Context, uid, subscriptionID, plan string) error {
	return s.updateExisting(ctx, uid, bson.M{"$set": bson.M{
		"subscription_id":     subscriptionID,
		"subscription_status": models.SubscriptionCreated,
		"plan":                plan,
		"updated_at":          s.now(),
	}})
}

// ActivateSubscription marks the subscription active and appends p to the
// payment history.
func (s *Store) ActivateSubscription(ctx context.Context, uid string, p models.Payment) (models.User, error) {
	return s.updateAndGet(ctx, uid, bson.M{
		"$set": bson.M{
			"plan":                p.Plan,
			"subscription_id":     p.SubscriptionID,
			"subscription_status": models.SubscriptionActive,
			"updated_at":          s.now(),
		},
		"$push": bson.M{"payments": p},
	})
}

// CancelSubscription marks the subscription cancelled.
func (s *Store) CancelSubscription(ctx context.Context, uid string) (models.User, error) {
	return s.updateAndGet(ctx, uid, bson.M{"$set": bson.M{
		"subscription_status": models.SubscriptionCancelled,
		"updated_at":          s.now(),
	}})
}

func (s *Store) updateExisting(ctx context.Context, uid string, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"uid": uid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) updateAndGet(ctx context.Context, uid string, update bson.M) (models.User, error) {
	var u models.User
	err := s.c.FindOneAndUpdate(ctx, bson.M{"uid": uid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}
