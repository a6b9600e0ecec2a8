package forum_test

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/features/forum"
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
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/dalemusser/commonshub/internal/testutil"
	"go.uber.org/zap"
)

const (
	ssoSecret = "sso-secret"
	loginURL  = "https://app.example.com/login"
)

func noLimit(next http.Handler) http.Handler { return next }

type env struct {
	srv       http.Handler
	forum     *testutil.FakeForum
	fx        *testutil.Fixtures
	community models.Community
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
		t.Fatal(err)
	}
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "test-session", "", time.Hour, time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	client := func(baseURL string) *discourse.Client {
		return discourse.New(baseURL, "key", "system", 5*time.Second)
	}
	reg := metrics.New()
	linker := &forumid.Linker{
		Mappings:    mappingstore.New(db),
		Users:       userstore.New(db),
		Communities: communitystore.New(db),
		Sealer:      s,
		Forum:       func(baseURL string) forumid.Forum { return client(baseURL) },
		Metrics:     reg,
		Log:         zap.NewNop(),
	}
	h := forum.NewHandler(forum.Config{
		Linker:   linker,
		Bridge:   &forumid.Bridge{Linker: linker, Secret: ssoSecret},
		Sessions: sm,
		Client:   client,
		Cache:    cache.NewMemory(time.Minute),
		CacheTTL: time.Minute,
		Metrics:  reg,
		LoginURL: loginURL,
	}, apierr.NewErrorLogger(zap.NewNop(), true), zap.NewNop())

	ff := testutil.NewFakeForum(t)
	fx := testutil.NewFixtures(t, db)
	return &env{
		srv:       sm.LoadSessionUser(forum.Routes(h, noLimit)),
		forum:     ff,
		fx:        fx,
		community: fx.CreateCommunity(ctx, "Makers", ff.URL, "creator"),
	}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *env) register(t *testing.T, uid, email string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(testutil.JSONRequest(t, http.MethodPost, "/register", map[string]string{
		"userId": uid, "communityId": e.community.ID.Hex(), "email": email, "name": "Ada",
	}))
}

// ssoPayload decodes the sso parameter of a redirect back to the forum.
func ssoPayload(t *testing.T, location string) url.Values {
	t.Helper()
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse redirect %q: %v", location, err)
	}
	sso, sig := u.Query().Get("sso"), u.Query().Get("sig")
	if !discourse.Verify(ssoSecret, sso, sig) {
		t.Fatalf("redirect signature does not verify")
	}
	raw, err := base64.StdEncoding.DecodeString(sso)
	if err != nil {
		t.Fatalf("decode sso: %v", err)
	}
	vals, err := url.ParseQuery(string(raw))
	if err != nil {
		t.Fatal(err)
	}
	return vals
}

func TestRegister_CreatedThenAlreadyRegistered(t *testing.T) {
	e := newEnv(t)

	rec := e.register(t, "u-ada", "ada@example.com")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d (%s)", rec.Code, rec.Body.String())
	}
	first := testutil.DecodeJSON(t, rec)
	if first["discourseUserId"] == nil {
		t.Errorf("expected a resolved id, got %v", first)
	}

	rec = e.register(t, "u-ada", "ada@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("second register: got %d", rec.Code)
	}
	second := testutil.DecodeJSON(t, rec)
	if second["alreadyRegistered"] != true {
		t.Errorf("alreadyRegistered: got %v", second["alreadyRegistered"])
	}
	if second["discourseUsername"] != first["discourseUsername"] {
		t.Errorf("username changed: %v vs %v", first["discourseUsername"], second["discourseUsername"])
	}
	if n := len(e.forum.Users()); n != 1 {
		t.Errorf("forum accounts: got %d, want 1", n)
	}
}

func TestRegister_PendingAndRejected(t *testing.T) {
	e := newEnv(t)

	e.forum.Set(testutil.ForumToggles{OmitCreatedID: true, HideLookup: true, HideSearch: true})
	rec := e.register(t, "u-pending", "p@example.com")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d (%s)", rec.Code, rec.Body.String())
	}
	body := testutil.DecodeJSON(t, rec)
	if body["idPending"] != true || body["discourseUserId"] != nil {
		t.Errorf("expected pending id, got %v", body)
	}

	e.forum.Set(testutil.ForumToggles{RejectCreate: true})
	rec = e.register(t, "u-rejected", "r@example.com")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("rejected register: got %d, want 400", rec.Code)
	}
	if _, ok := testutil.DecodeJSON(t, rec)["errors"].(map[string]any); !ok {
		t.Errorf("forum errors not passed through: %s", rec.Body.String())
	}
}

func TestServeUser(t *testing.T) {
	e := newEnv(t)
	e.register(t, "u-ada", "ada@example.com")

	q := "/user?userId=u-ada&communityId=" + e.community.ID.Hex()
	rec := e.do(httptest.NewRequest(http.MethodGet, q, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "assword") {
		t.Error("response must not carry the forum password")
	}

	rec = e.do(httptest.NewRequest(http.MethodGet, "/user?userId=nobody&communityId="+e.community.ID.Hex(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user: got %d, want 404", rec.Code)
	}
}

func TestSSO_SignsRegisteredUserOn(t *testing.T) {
	e := newEnv(t)
	reg := testutil.DecodeJSON(t, e.register(t, "u-ada", "ada@example.com"))

	returnURL := e.forum.URL + "/session/sso_login"
	sso, sig := discourse.BuildRequest(ssoSecret, "nonce-1", returnURL)
	target := "/sso?" + url.Values{"sso": {sso}, "sig": {sig}, "userId": {"u-ada"}}.Encode()

	rec := e.do(httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status: got %d, want 302 (%s)", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, returnURL+"?") {
		t.Fatalf("redirect: got %q", loc)
	}
	p := ssoPayload(t, loc)
	if p.Get("nonce") != "nonce-1" {
		t.Errorf("nonce: got %q", p.Get("nonce"))
	}
	if p.Get("external_id") != "u-ada" {
		t.Errorf("external_id: got %q", p.Get("external_id"))
	}
	if p.Get("email") != "ada@example.com" {
		t.Errorf("email: got %q", p.Get("email"))
	}
	if p.Get("username") != reg["discourseUsername"] {
		t.Errorf("username: got %q, want %v", p.Get("username"), reg["discourseUsername"])
	}
	if p.Get("admin") != "false" || p.Get("moderator") != "false" {
		t.Errorf("admin/moderator: got %q/%q", p.Get("admin"), p.Get("moderator"))
	}
}

func TestSSO_Failures(t *testing.T) {
	e := newEnv(t)
	returnURL := e.forum.URL + "/session/sso_login"
	sso, sig := discourse.BuildRequest(ssoSecret, "n", returnURL)

	tests := []struct {
		name  string
		query url.Values
		want  int
	}{
		{"bad signature", url.Values{"sso": {sso}, "sig": {strings.Repeat("0", 64)}, "userId": {"u"}}, http.StatusBadRequest},
		{"uppercased signature", url.Values{"sso": {sso}, "sig": {strings.ToUpper(sig)}, "userId": {"u"}}, http.StatusBadRequest},
		{"missing sso", url.Values{"sig": {sig}, "userId": {"u"}}, http.StatusBadRequest},
		{"not registered", url.Values{"sso": {sso}, "sig": {sig}, "userId": {"stranger"}}, http.StatusNotFound},
		{"bad community id", url.Values{"sso": {sso}, "sig": {sig}, "userId": {"u"}, "communityId": {"zz"}}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(httptest.NewRequest(http.MethodGet, "/sso?"+tc.query.Encode(), nil))
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestSSO_AnonymousDefersToLoginAndResumes(t *testing.T) {
	e := newEnv(t)
	e.register(t, "u-ada", "ada@example.com")

	returnURL := e.forum.URL + "/session/sso_login"
	sso, sig := discourse.BuildRequest(ssoSecret, "nonce-2", returnURL)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/sso?"+url.Values{"sso": {sso}, "sig": {sig}}.Encode(), nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != loginURL {
		t.Fatalf("anonymous sso: got %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected the pending request to be stashed in a cookie")
	}

	// Resume without signing in first.
	req := httptest.NewRequest(http.MethodGet, "/sso/resume", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if rec := e.do(req); rec.Code != http.StatusUnauthorized {
		t.Errorf("resume while anonymous: got %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/sso/resume", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	req = auth.WithTestUser(req, &auth.SessionUser{UID: "u-ada"})
	rec = e.do(req)
	if rec.Code != http.StatusFound {
		t.Fatalf("resume: got %d (%s)", rec.Code, rec.Body.String())
	}
	if p := ssoPayload(t, rec.Header().Get("Location")); p.Get("nonce") != "nonce-2" {
		t.Errorf("nonce: got %q", p.Get("nonce"))
	}

	// Without the cookie there is nothing to resume.
	req = auth.WithTestUser(httptest.NewRequest(http.MethodGet, "/sso/resume", nil), &auth.SessionUser{UID: "u-ada"})
	if rec := e.do(req); rec.Code != http.StatusBadRequest {
		t.Errorf("resume without cookie: got %d, want 400", rec.Code)
	}
}

func TestInitiateSSO_RemembersUser(t *testing.T) {
	e := newEnv(t)
	e.register(t, "u-ada", "ada@example.com")

	rec := e.do(httptest.NewRequest(http.MethodGet,
		"/initiate-sso?userId=u-ada&communityId="+e.community.ID.Hex(), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status: got %d (%s)", rec.Code, rec.Body.String())
	}
	if want := e.forum.URL + "/session/sso?return_path=/"; rec.Header().Get("Location") != want {
		t.Errorf("redirect: got %q, want %q", rec.Header().Get("Location"), want)
	}

	// The forum then calls back with no userId; the session supplies it and
	// the community is found by the return URL's host.
	sso, sig := discourse.BuildRequest(ssoSecret, "nonce-3", e.forum.URL+"/session/sso_login")
	req := httptest.NewRequest(http.MethodGet, "/sso?"+url.Values{"sso": {sso}, "sig": {sig}}.Encode(), nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = e.do(req)
	if rec.Code != http.StatusFound {
		t.Fatalf("sso: got %d (%s)", rec.Code, rec.Body.String())
	}
	if p := ssoPayload(t, rec.Header().Get("Location")); p.Get("external_id") != "u-ada" {
		t.Errorf("external_id: got %q", p.Get("external_id"))
	}
}

func TestPosts_ActAsMappedUser(t *testing.T) {
	e := newEnv(t)
	reg := testutil.DecodeJSON(t, e.register(t, "u-ada", "ada@example.com"))
	username, _ := reg["discourseUsername"].(string)
	cid := e.community.ID.Hex()

	rec := e.do(testutil.JSONRequest(t, http.MethodPost, "/posts", map[string]any{
		"userId": "u-ada", "communityId": cid,
		"title": "Q&A: Don't <i>panic</i>", "raw": "> quoted line\r\n\nuse `a < b && c` & don't", "category": 1,
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create topic: got %d (%s)", rec.Code, rec.Body.String())
	}
	var topic discourse.Post
	testutil.DecodeInto(t, rec, &topic)

	posts := e.forum.Posts()
	if len(posts) != 1 {
		t.Fatalf("forum posts: got %d, want 1", len(posts))
	}
	if posts[0].Username != username {
		t.Errorf("posted as %q, want %q", posts[0].Username, username)
	}
	if want := "> quoted line\n\nuse `a < b && c` & don't"; posts[0].Raw != want {
		t.Errorf("raw: got %q, want %q", posts[0].Raw, want)
	}
	if want := "Q&A: Don't panic"; posts[0].Title != want {
		t.Errorf("title: got %q, want %q", posts[0].Title, want)
	}

	rec = e.do(testutil.JSONRequest(t, http.MethodPost, "/posts/"+itoa(topic.TopicID)+"/replies", map[string]any{
		"userId": "u-ada", "communityId": cid, "raw": "A reply",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("reply: got %d (%s)", rec.Code, rec.Body.String())
	}
	posts = e.forum.Posts()
	if len(posts) != 2 || posts[1].TopicID != topic.TopicID {
		t.Errorf("reply not attached to topic: %+v", posts)
	}

	rec = e.do(testutil.JSONRequest(t, http.MethodPost, "/posts/"+itoa(topic.ID)+"/like", map[string]any{
		"userId": "u-ada", "communityId": cid,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("like: got %d (%s)", rec.Code, rec.Body.String())
	}
	if likes := e.forum.Likes(topic.ID); len(likes) != 1 || likes[0] != username {
		t.Errorf("likes: got %v", likes)
	}
}

func TestPosts_Errors(t *testing.T) {
	e := newEnv(t)
	cid := e.community.ID.Hex()

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"not registered", testutil.JSONRequest(t, http.MethodPost, "/posts", map[string]any{
			"userId": "stranger", "communityId": cid, "title": "T", "raw": "R"}), http.StatusNotFound},
		{"empty raw", testutil.JSONRequest(t, http.MethodPost, "/posts", map[string]any{
			"userId": "stranger", "communityId": cid, "title": "T", "raw": "  \n\n "}), http.StatusBadRequest},
		{"bad topic id", testutil.JSONRequest(t, http.MethodPost, "/posts/abc/replies", map[string]any{
			"userId": "stranger", "communityId": cid, "raw": "R"}), http.StatusBadRequest},
		{"unknown community", testutil.JSONRequest(t, http.MethodPost, "/posts/1/like", map[string]any{
			"userId": "stranger", "communityId": "000000000000000000000000"}), http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := e.do(tc.req); rec.Code != tc.want {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestPosts_ForumNotFound(t *testing.T) {
	e := newEnv(t)
	e.register(t, "u-ada", "ada@example.com")

	rec := e.do(testutil.JSONRequest(t, http.MethodPost, "/posts/999999/like", map[string]any{
		"userId": "u-ada", "communityId": e.community.ID.Hex(),
	}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("like missing post: got %d, want 404 (%s)", rec.Code, rec.Body.String())
	}
}

func TestFeed_Cached(t *testing.T) {
	e := newEnv(t)
	e.register(t, "u-ada", "ada@example.com")
	cid := e.community.ID.Hex()
	e.do(testutil.JSONRequest(t, http.MethodPost, "/posts", map[string]any{
		"userId": "u-ada", "communityId": cid, "title": "First", "raw": "Body",
	}))

	var feed forum.Feed
	for i := 0; i < 2; i++ {
		rec := e.do(httptest.NewRequest(http.MethodGet, "/communities/"+cid+"/feed", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("feed: got %d (%s)", rec.Code, rec.Body.String())
		}
		testutil.DecodeInto(t, rec, &feed)
	}
	if len(feed.Topics) != 1 || feed.Topics[0].Title != "First" {
		t.Errorf("topics: got %+v", feed.Topics)
	}
	if len(feed.Categories) != 1 {
		t.Errorf("categories: got %+v", feed.Categories)
	}
	if n := e.forum.CallCount("GET /latest.json"); n != 1 {
		t.Errorf("latest fetched %d times, want 1", n)
	}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/communities/000000000000000000000000/feed", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown community feed: got %d, want 404", rec.Code)
	}
}
