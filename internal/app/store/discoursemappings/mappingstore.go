// internal/app/store/discoursemappings/mappingstore.go
package mappingstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/commonshub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("user is not registered with this community")
	// ErrAlreadyMapped is returned when (user_id, community_id) already has a mapping.
	ErrAlreadyMapped = errors.New("forum account already mapped for this community")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("discourse_user_mappings")}
}

// Insert stores a new mapping. The unique (user_id, community_id) index
// turns a concurrent or repeated insert into ErrAlreadyMapped.
func (s *Store) Insert(ctx context.Context, m models.DiscourseUserMapping) (models.DiscourseUserMapping, error) {
	now := time.Now().UTC()
	m.ID = primitive.NewObjectID()
	m.IDPending = m.DiscourseUserID == nil
	m.CreatedAt = now
	m.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.DiscourseUserMapping{}, ErrAlreadyMapped
		}
		return models.DiscourseUserMapping{}, err
	}
	return m, nil
}

// Get returns the mapping for (uid, communityID).
func (s *Store) Get(ctx context.Context, uid string, communityID primitive.ObjectID) (models.DiscourseUserMapping, error) {
	var m models.DiscourseUserMapping
	err := s.c.FindOne(ctx, bson.M{"user_id": uid, "community_id": communityID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.DiscourseUserMapping{}, ErrNotFound
	}
	if err != nil {
		return models.DiscourseUserMapping{}, err
	}
	return m, nil
}

// ResolvePending sets the forum id on a pending mapping. It is the only
// in-place update a mapping ever receives; resolved mappings are left
// alone and the call reports false.
func (s *Store) ResolvePending(ctx context.Context, id primitive.ObjectID, forumID int64) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "id_pending": true},
		bson.M{"$set": bson.M{
			"discourse_user_id": forumID,
			"id_pending":        false,
			"updated_at":        time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// TouchPending bumps updated_at so a mapping that failed to resolve moves
// to the back of the ListPending order.
func (s *Store) TouchPending(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "id_pending": true},
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	return err
}

// ListPending returns up to limit pending mappings, least recently tried first.
func (s *Store) ListPending(ctx context.Context, limit int64) ([]models.DiscourseUserMapping, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"id_pending": true},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.DiscourseUserMapping
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByUser returns how many communities uid has a forum account in.
func (s *Store) CountByUser(ctx context.Context, uid string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": uid})
}
