package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/commonshub/internal/app/system/normalize"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Calling it again on the returned request keeps earlier parameters.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, _ := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures inserts documents directly, bypassing the stores.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateCommunity inserts an active community whose forum lives at forumURL.
func (f *Fixtures) CreateCommunity(ctx context.Context, name, forumURL, creatorUID string) models.Community {
	f.t.Helper()

	c := models.Community{
		ID:            primitive.NewObjectID(),
		Name:          name,
		NameCI:        text.Fold(name),
		Description:   "Test community",
		Category:      "general",
		DiscourseURL:  forumURL,
		DiscourseHost: normalize.Host(forumURL),
		Creator:       models.CommunityCreator{UID: creatorUID, Name: "Creator"},
		Status:        models.CommunityActive,
		Slug:          normalize.Slug(name),
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := f.db.Collection("communities").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test community: %v", err)
	}
	return c
}

// CreateUser inserts a user with the given uid and email.
func (f *Fixtures) CreateUser(ctx context.Context, uid, email, name string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:        primitive.NewObjectID(),
		UID:       uid,
		Email:     normalize.Email(email),
		Name:      name,
		NameCI:    text.Fold(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateMapping inserts a forum mapping. A nil forumID makes it pending.
func (f *Fixtures) CreateMapping(ctx context.Context, uid string, communityID primitive.ObjectID, username string, forumID *int64) models.DiscourseUserMapping {
	f.t.Helper()

	now := time.Now().UTC()
	m := models.DiscourseUserMapping{
		ID:                primitive.NewObjectID(),
		UserID:            uid,
		CommunityID:       communityID,
		DiscourseUserID:   forumID,
		IDPending:         forumID == nil,
		DiscourseUsername: username,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := f.db.Collection("discourse_user_mappings").InsertOne(ctx, m); err != nil {
		f.t.Fatalf("failed to create test mapping: %v", err)
	}
	return m
}

// CreateCourse inserts a course with one section.
func (f *Fixtures) CreateCourse(ctx context.Context, communityID primitive.ObjectID, title, createdBy string) models.Course {
	f.t.Helper()

	now := time.Now().UTC()
	c := models.Course{
		ID:          primitive.NewObjectID(),
		CommunityID: communityID,
		Title:       title,
		TitleCI:     text.Fold(title),
		CreatedBy:   createdBy,
		Sections: []models.CourseSection{{
			Title:  "Intro",
			Videos: []models.CourseVideo{{Title: "Welcome", URL: "https://videos.example.com/1.mp4"}},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("courses").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test course: %v", err)
	}
	return c
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
