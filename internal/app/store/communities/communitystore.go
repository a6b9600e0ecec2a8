// internal/app/store/communities/communitystore.go
package communitystore

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

var ErrNotFound = errors.New("community not found")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("communities")}
}

// Create inserts a community. Slug, host, status and counters are derived
// here; callers only supply the descriptive fields and creator.
func (s *Store) Create(ctx context.Context, c models.Community) (models.Community, error) {
	c.ID = primitive.NewObjectID()
	c.Name = normalize.Name(c.Name)
	c.NameCI = text.Fold(c.Name)
	c.Slug = normalize.Slug(c.Name)
	c.DiscourseHost = normalize.Host(c.DiscourseURL)
	c.Creator.Email = normalize.Email(c.Creator.Email)
	c.MembersCount = 0
	if c.Status == "" {
		c.Status = models.CommunityActive
	}
	c.CreatedAt = time.Now().UTC()

	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return models.Community{}, err
	}
	return c, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Community, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByDiscourseHost finds the active community whose forum lives at host.
func (s *Store) GetByDiscourseHost(ctx context.Context, host string) (models.Community, error) {
	if host == "" {
		return models.Community{}, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"discourse_host": host, "status": models.CommunityActive})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Community, error) {
	var c models.Community
	err := s.c.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Community{}, ErrNotFound
	}
	if err != nil {
		return models.Community{}, err
	}
	return c, nil
}

// ListActive returns active communities, newest first.
func (s *Store) ListActive(ctx context.Context) ([]models.Community, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"status": models.CommunityActive},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Community{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByIDs returns the communities among ids, newest first. Unknown ids
// are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Community, error) {
	out := []models.Community{}
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.c.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMembers adjusts members_count by delta. The counter never goes below
// zero. Joins call it unconditionally, so a retried join inflates it.
func (s *Store) AddMembers(ctx context.Context, id primitive.ObjectID, delta int64) error {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["members_count"] = bson.M{"$gte": -delta}
	}
	_, err := s.c.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"members_count": delta}})
	return err
}
