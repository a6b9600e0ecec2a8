package communitystore_test

import (
	"testing"

	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/dalemusser/commonshub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := communitystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Community{
		Name:         "Foo Bar",
		Description:  "d",
		Category:     "general",
		DiscourseURL: "HTTP://Forum.Example.com:8443/",
		Creator:      models.CommunityCreator{UID: "u1"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created.ID == primitive.NilObjectID {
		t.Error("expected ID to be assigned")
	}
	if created.Slug != "foo-bar" {
		t.Errorf("slug: got %q, want %q", created.Slug, "foo-bar")
	}
	if created.DiscourseHost != "forum.example.com" {
		t.Errorf("discourse host: got %q", created.DiscourseHost)
	}
	if created.Status != models.CommunityActive {
		t.Errorf("status: got %q, want %q", created.Status, models.CommunityActive)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.MembersCount != 0 || got.Slug != "foo-bar" {
		t.Errorf("stored: members=%d slug=%q", got.MembersCount, got.Slug)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := communitystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); err != communitystore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListActive_HidesArchived(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := communitystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.Community{Name: "Open", DiscourseURL: "http://a"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.Create(ctx, models.Community{Name: "Closed", DiscourseURL: "http://b", Status: models.CommunityArchived}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Open" {
		t.Errorf("ListActive: got %d communities", len(list))
	}
}

func TestStore_GetByDiscourseHost(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := communitystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c, _ := store.Create(ctx, models.Community{Name: "Forum", DiscourseURL: "https://forum.example.com"})

	got, err := store.GetByDiscourseHost(ctx, "forum.example.com")
	if err != nil {
		t.Fatalf("GetByDiscourseHost failed: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("got community %s, want %s", got.ID.Hex(), c.ID.Hex())
	}
	if _, err := store.GetByDiscourseHost(ctx, "other.example.com"); err != communitystore.ErrNotFound {
		t.Errorf("unknown host: got %v, want ErrNotFound", err)
	}
}

func TestStore_AddMembers_FloorAtZero(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := communitystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c, _ := store.Create(ctx, models.Community{Name: "Count", DiscourseURL: "http://c"})

	_ = store.AddMembers(ctx, c.ID, 1)
	_ = store.AddMembers(ctx, c.ID, 1)
	_ = store.AddMembers(ctx, c.ID, -1)
	_ = store.AddMembers(ctx, c.ID, -1)
	_ = store.AddMembers(ctx, c.ID, -1)

	got, _ := store.GetByID(ctx, c.ID)
	if got.MembersCount != 0 {
		t.Errorf("members_count: got %d, want 0", got.MembersCount)
	}
}

func TestStore_GetByIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := communitystore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a, _ := store.Create(ctx, models.Community{Name: "A", DiscourseURL: "http://a"})
	b, _ := store.Create(ctx, models.Community{Name: "B", DiscourseURL: "http://b"})
	_, _ = store.Create(ctx, models.Community{Name: "C", DiscourseURL: "http://c"})

	got, err := store.GetByIDs(ctx, []primitive.ObjectID{a.ID, b.ID, primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("GetByIDs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d communities, want 2", len(got))
	}

	empty, err := store.GetByIDs(ctx, nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("nil ids: got %v, %v; want empty non-nil slice", empty, err)
	}
}
