package mappingstore_test

import (
	"testing"

	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	"github.com/dalemusser/commonshub/internal/app/system/indexes"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/dalemusser/commonshub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Insert_DuplicateIsAlreadyMapped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	store := mappingstore.New(db)

	cid := primitive.NewObjectID()
	id := int64(5)
	m := models.DiscourseUserMapping{UserID: "u1", CommunityID: cid, DiscourseUserID: &id, DiscourseUsername: "a_b_x"}

	first, err := store.Insert(ctx, m)
	if err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if first.IDPending {
		t.Error("mapping with an id must not be pending")
	}

	if _, err := store.Insert(ctx, m); err != mappingstore.ErrAlreadyMapped {
		t.Errorf("second Insert: got %v, want ErrAlreadyMapped", err)
	}
	if n, _ := store.CountByUser(ctx, "u1"); n != 1 {
		t.Errorf("mappings for u1: got %d, want 1", n)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := mappingstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Get(ctx, "u1", primitive.NewObjectID()); err != mappingstore.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_PendingLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := mappingstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cid := primitive.NewObjectID()
	m, err := store.Insert(ctx, models.DiscourseUserMapping{UserID: "u1", CommunityID: cid, DiscourseUsername: "p"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !m.IDPending || m.DiscourseUserID != nil {
		t.Fatalf("expected pending mapping, got %+v", m)
	}

	pending, err := store.ListPending(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListPending: got %d, err %v", len(pending), err)
	}

	ok, err := store.ResolvePending(ctx, m.ID, 99)
	if err != nil || !ok {
		t.Fatalf("ResolvePending: ok=%v err=%v", ok, err)
	}
	// Resolved mappings are never rewritten.
	ok, _ = store.ResolvePending(ctx, m.ID, 100)
	if ok {
		t.Error("ResolvePending on a resolved mapping must be a no-op")
	}

	got, _ := store.Get(ctx, "u1", cid)
	if got.IDPending || got.DiscourseUserID == nil || *got.DiscourseUserID != 99 {
		t.Errorf("after resolve: %+v", got)
	}
	if pending, _ := store.ListPending(ctx, 10); len(pending) != 0 {
		t.Errorf("ListPending after resolve: got %d, want 0", len(pending))
	}
}
