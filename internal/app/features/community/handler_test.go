package community_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/features/community"
	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/cache"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/indexes"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/app/system/sealer"
	"github.com/dalemusser/commonshub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func noLimit(next http.Handler) http.Handler { return next }

type env struct {
	srv   http.Handler
	db    *mongo.Database
	fx    *testutil.Fixtures
	forum *testutil.FakeForum
	cache cache.Cache
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	s, err := sealer.New("test passphrase")
	if err != nil {
		t.Fatalf("sealer.New: %v", err)
	}

	communities := communitystore.New(db)
	users := userstore.New(db)
	reg := metrics.New()
	linker := &forumid.Linker{
		Mappings:    mappingstore.New(db),
		Users:       users,
		Communities: communities,
		Sealer:      s,
		Forum: func(baseURL string) forumid.Forum {
			return discourse.New(baseURL, "key", "system", 5*time.Second)
		},
		Metrics: reg,
		Log:     zap.NewNop(),
	}
	c := cache.NewMemory(time.Minute)
	h := community.NewHandler(communities, users, linker, c, time.Minute, reg,
		apierr.NewErrorLogger(zap.NewNop(), true), zap.NewNop())

	return &env{
		srv:   community.Routes(h, noLimit),
		db:    db,
		fx:    testutil.NewFixtures(t, db),
		forum: testutil.NewFakeForum(t),
		cache: c,
	}
}

func (e *env) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateThenList(t *testing.T) {
	e := newEnv(t)

	// Prime the cache so the create has something to invalidate.
	if rec := e.do(t, httptest.NewRequest(http.MethodGet, "/get-communities", nil)); rec.Code != http.StatusOK {
		t.Fatalf("initial list: got %d", rec.Code)
	}

	rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/create-community", map[string]any{
		"name":          "  Foo   Bar ",
		"description":   "<b>Makers</b> welcome: Q&A, Don't panic\n> quote",
		"category":      "tech",
		"discourse_url": "https://forum.example.com/",
		"creator":       map[string]string{"uid": "creator-1", "name": "Cara", "email": "Cara@Example.com"},
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	body := testutil.DecodeJSON(t, rec)
	id, _ := body["communityId"].(string)
	if id == "" {
		t.Fatalf("missing communityId: %v", body)
	}

	rec = e.do(t, httptest.NewRequest(http.MethodGet, "/get-communities", nil))
	var list []struct {
		ID           string `json:"_id"`
		Name         string `json:"name"`
		Slug         string `json:"slug"`
		Description  string `json:"description"`
		DiscourseURL string `json:"discourse_url"`
		MembersCount int64  `json:"members_count"`
		Status       string `json:"status"`
	}
	testutil.DecodeInto(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("list: got %d communities, want 1", len(list))
	}
	got := list[0]
	if got.ID != id {
		t.Errorf("id: got %q, want %q", got.ID, id)
	}
	if got.Name != "Foo Bar" {
		t.Errorf("name: got %q, want %q", got.Name, "Foo Bar")
	}
	if got.Slug != "foo-bar" {
		t.Errorf("slug: got %q, want %q", got.Slug, "foo-bar")
	}
	if got.MembersCount != 0 {
		t.Errorf("members_count: got %d, want 0", got.MembersCount)
	}
	if got.Status != "active" {
		t.Errorf("status: got %q", got.Status)
	}
	if got.Description != "Makers welcome: Q&A, Don't panic\n> quote" {
		t.Errorf("description: got %q", got.Description)
	}
	if got.DiscourseURL != "https://forum.example.com" {
		t.Errorf("discourse_url: got %q", got.DiscourseURL)
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	u, err := userstore.New(e.db).GetByUID(ctx, "creator-1")
	if err != nil {
		t.Fatalf("creator not stored: %v", err)
	}
	if len(u.CreatedCommunities) != 1 || u.CreatedCommunities[0].Hex() != id {
		t.Errorf("createdCommunities: got %v", u.CreatedCommunities)
	}
}

func TestCreate_SessionUserIsCreator(t *testing.T) {
	e := newEnv(t)

	req := testutil.JSONRequest(t, http.MethodPost, "/create-community", map[string]any{
		"name": "Readers", "category": "books", "discourse_url": "https://books.example.com",
	})
	req = auth.WithTestUser(req, &auth.SessionUser{UID: "session-uid", Name: "Sam", Email: "sam@example.com"})
	rec := e.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Community struct {
			Creator struct {
				UID   string `json:"uid"`
				Email string `json:"email"`
			} `json:"creator"`
		} `json:"community"`
	}
	testutil.DecodeInto(t, rec, &body)
	if body.Community.Creator.UID != "session-uid" || body.Community.Creator.Email != "sam@example.com" {
		t.Errorf("creator: got %+v", body.Community.Creator)
	}
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing name", map[string]any{"category": "x", "discourse_url": "https://f.example.com", "creator": map[string]string{"uid": "u"}}, "name"},
		{"bad url", map[string]any{"name": "N", "category": "x", "discourse_url": "not a url", "creator": map[string]string{"uid": "u"}}, "discourse_url"},
		{"no creator", map[string]any{"name": "N", "category": "x", "discourse_url": "https://f.example.com"}, "creator.uid"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/create-community", tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			fields, _ := testutil.DecodeJSON(t, rec)["fields"].(map[string]any)
			if len(fields) == 0 {
				t.Errorf("expected field errors for %s", tc.field)
			}
		})
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := e.db.Collection("communities").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("communities stored after failed validation: %d", n)
	}
}

func TestServeCommunity(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := e.fx.CreateCommunity(ctx, "Makers", "https://makers.example.com", "creator")

	tests := []struct {
		path string
		want int
	}{
		{"/community/" + c.ID.Hex(), http.StatusOK},
		{"/community/000000000000000000000000", http.StatusNotFound},
		{"/community/not-hex", http.StatusBadRequest},
	}
	for _, tc := range tests {
		rec := e.do(t, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("GET %s: got %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}

func TestJoin_Twice(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := e.fx.CreateCommunity(ctx, "Makers", e.forum.URL, "creator")

	join := map[string]string{
		"userId": "u-ada", "communityId": c.ID.Hex(), "email": "ada@example.com", "name": "Ada",
	}
	var first, second struct {
		DiscourseUsername string `json:"discourseUsername"`
		DiscourseUserID   *int64 `json:"discourseUserId"`
		IDPending         bool   `json:"idPending"`
		NewForumAccount   bool   `json:"newForumAccount"`
	}
	rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/join", join))
	if rec.Code != http.StatusOK {
		t.Fatalf("first join: got %d (%s)", rec.Code, rec.Body.String())
	}
	testutil.DecodeInto(t, rec, &first)
	rec = e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/join", join))
	if rec.Code != http.StatusOK {
		t.Fatalf("second join: got %d (%s)", rec.Code, rec.Body.String())
	}
	testutil.DecodeInto(t, rec, &second)

	if !first.NewForumAccount || second.NewForumAccount {
		t.Errorf("newForumAccount: got %v then %v, want true then false", first.NewForumAccount, second.NewForumAccount)
	}
	if first.DiscourseUsername == "" || first.DiscourseUsername != second.DiscourseUsername {
		t.Errorf("username: got %q then %q", first.DiscourseUsername, second.DiscourseUsername)
	}
	if first.IDPending || first.DiscourseUserID == nil {
		t.Errorf("expected a resolved forum id, got %+v", first)
	}

	n, err := e.db.Collection("discourse_user_mappings").CountDocuments(ctx, bson.M{"user_id": "u-ada"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("mappings: got %d, want 1", n)
	}
	if got := len(e.forum.Users()); got != 1 {
		t.Errorf("forum accounts: got %d, want 1", got)
	}

	u, err := userstore.New(e.db).GetByUID(ctx, "u-ada")
	if err != nil {
		t.Fatal(err)
	}
	if len(u.Communities) != 1 {
		t.Errorf("communities on user: got %d, want 1", len(u.Communities))
	}
	if len(u.DiscourseUsers) != 1 {
		t.Errorf("discourse identities on user: got %d, want 1", len(u.DiscourseUsers))
	}
}

func TestJoin_EmailFromStoredUser(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := e.fx.CreateCommunity(ctx, "Makers", e.forum.URL, "creator")
	e.fx.CreateUser(ctx, "u-bo", "bo@example.com", "Bo")

	rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/join", map[string]string{
		"userId": "u-bo", "communityId": c.ID.Hex(),
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("join: got %d (%s)", rec.Code, rec.Body.String())
	}
	users := e.forum.Users()
	if len(users) != 1 || users[0].Email != "bo@example.com" {
		t.Errorf("forum account: got %+v", users)
	}
}

func TestJoin_Errors(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := e.fx.CreateCommunity(ctx, "Makers", e.forum.URL, "creator")

	tests := []struct {
		name  string
		body  map[string]string
		setup func()
		want  int
	}{
		{"missing fields", map[string]string{"userId": "u1"}, nil, http.StatusBadRequest},
		{"bad id", map[string]string{"userId": "u1", "communityId": "zzz"}, nil, http.StatusBadRequest},
		{"unknown community", map[string]string{"userId": "u1", "communityId": "000000000000000000000000", "email": "a@example.com"}, nil, http.StatusNotFound},
		{"no email anywhere", map[string]string{"userId": "u-nomail", "communityId": c.ID.Hex()}, nil, http.StatusBadRequest},
		{"forum rejects", map[string]string{"userId": "u2", "communityId": c.ID.Hex(), "email": "b@example.com"},
			func() { e.forum.Set(testutil.ForumToggles{RejectCreate: true}) }, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup()
			}
			rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/join", tc.body))
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}

	c2, err := communitystore.New(e.db).GetByID(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c2.MembersCount != 0 {
		t.Errorf("members_count after failed joins: got %d, want 0", c2.MembersCount)
	}
}

func TestJoin_ForumRejectionPassesErrorsThrough(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := e.fx.CreateCommunity(ctx, "Makers", e.forum.URL, "creator")
	e.forum.Set(testutil.ForumToggles{RejectCreate: true})

	rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/join", map[string]string{
		"userId": "u2", "communityId": c.ID.Hex(), "email": "b@example.com",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
	body := testutil.DecodeJSON(t, rec)
	errs, _ := body["errors"].(map[string]any)
	if _, ok := errs["username"]; !ok {
		t.Errorf("forum errors not passed through: %v", body)
	}
}

func TestLeave(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	c := e.fx.CreateCommunity(ctx, "Makers", e.forum.URL, "creator")

	join := map[string]string{"userId": "u-ada", "communityId": c.ID.Hex(), "email": "ada@example.com"}
	if rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/join", join)); rec.Code != http.StatusOK {
		t.Fatalf("join: got %d", rec.Code)
	}

	leave := map[string]string{"userId": "u-ada", "communityId": c.ID.Hex()}
	rec := e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/leave", leave))
	if rec.Code != http.StatusOK {
		t.Fatalf("leave: got %d (%s)", rec.Code, rec.Body.String())
	}
	if left, _ := testutil.DecodeJSON(t, rec)["left"].(bool); !left {
		t.Error("expected left=true")
	}

	// Leaving again changes nothing.
	rec = e.do(t, testutil.JSONRequest(t, http.MethodPost, "/community/leave", leave))
	if left, _ := testutil.DecodeJSON(t, rec)["left"].(bool); left {
		t.Error("second leave should report left=false")
	}

	got, err := communitystore.New(e.db).GetByID(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MembersCount != 0 {
		t.Errorf("members_count: got %d, want 0", got.MembersCount)
	}
	n, _ := e.db.Collection("discourse_user_mappings").CountDocuments(ctx, bson.M{"user_id": "u-ada"})
	if n != 1 {
		t.Errorf("mapping should survive leave, got %d", n)
	}
}

func TestList_ServedFromCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.cache.SetJSON(ctx, community.ListCacheKey, []map[string]string{{"name": "Cached"}}, time.Minute); err != nil {
		t.Fatal(err)
	}
	rec := e.do(t, httptest.NewRequest(http.MethodGet, "/get-communities", nil))
	var list []struct {
		Name string `json:"name"`
	}
	testutil.DecodeInto(t, rec, &list)
	if len(list) != 1 || list[0].Name != "Cached" {
		t.Errorf("expected cached listing, got %+v", list)
	}
}
