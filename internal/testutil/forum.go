package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// ForumUser is an account held by FakeForum.
type ForumUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// ForumPost is a topic or reply recorded by FakeForum.
type ForumPost struct {
	ID       int64
	TopicID  int64
	Title    string
	Raw      string
	Category int64
	Username string // Api-Username the post was made as
}

// FakeForum is an in-memory stand-in for the Discourse admin API. The
// toggles shape how user ids can be discovered so each resolution tier can
// be exercised.
type FakeForum struct {
	*httptest.Server

	mu     sync.Mutex
	nextID int64
	users  []ForumUser
	posts  []ForumPost
	likes  map[int64][]string
	calls  map[string]int
	ForumToggles
}

// ForumToggles shape how FakeForum exposes user ids.
type ForumToggles struct {
	// OmitCreatedID drops user_id from the create response.
	OmitCreatedID bool
	// HideLookup makes GET /u/{username}.json answer 404.
	HideLookup bool
	// HideSearch makes the admin user list return nothing.
	HideSearch bool
	// RejectCreate makes account creation fail with a validation error.
	RejectCreate bool
}

// NewFakeForum starts a FakeForum and closes it when the test ends.
func NewFakeForum(t *testing.T) *FakeForum {
	t.Helper()
	f := &FakeForum{nextID: 100, likes: map[int64][]string{}, calls: map[string]int{}}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.calls[req.Method+" "+req.URL.Path]++
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/users.json", f.createUser)
	r.Get("/u/{username}.json", f.getUser)
	r.Get("/admin/users/list/active.json", f.listActive)
	r.Post("/posts.json", f.createPost)
	r.Post("/post_actions.json", f.like)
	r.Get("/latest.json", f.latest)
	r.Get("/categories.json", f.categories)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// Users returns a copy of the accounts created so far.
func (f *FakeForum) Users() []ForumUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ForumUser(nil), f.users...)
}

// Posts returns a copy of the posts created so far.
func (f *FakeForum) Posts() []ForumPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ForumPost(nil), f.posts...)
}

// Likes returns the usernames that liked postID.
func (f *FakeForum) Likes(postID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.likes[postID]...)
}

// CallCount returns how many times "METHOD path" was requested.
func (f *FakeForum) CallCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// Set replaces the toggles. Safe to call while requests are in flight.
func (f *FakeForum) Set(t ForumToggles) {
	f.mu.Lock()
	f.ForumToggles = t
	f.mu.Unlock()
}

func writeForumJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeForum) createUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeForumJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{err.Error()}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RejectCreate {
		writeForumJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Username must be unique",
			"errors":  map[string][]string{"username": {"must be unique"}},
		})
		return
	}

	f.nextID++
	u := ForumUser{ID: f.nextID, Username: in.Username, Name: in.Name, Email: strings.ToLower(in.Email)}
	f.users = append(f.users, u)

	resp := map[string]any{"success": true, "active": true, "message": "Account created"}
	if !f.OmitCreatedID {
		resp["user_id"] = u.ID
	}
	writeForumJSON(w, http.StatusOK, resp)
}

func (f *FakeForum) getUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "username")

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.HideLookup {
		for _, u := range f.users {
			if u.Username == name {
				writeForumJSON(w, http.StatusOK, map[string]any{"user": u})
				return
			}
		}
	}
	writeForumJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"The requested URL or resource could not be found."}})
}

func (f *FakeForum) listActive(w http.ResponseWriter, r *http.Request) {
	filter := strings.ToLower(r.URL.Query().Get("filter"))

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []ForumUser{}
	if !f.HideSearch {
		for _, u := range f.users {
			if strings.Contains(u.Email, filter) || strings.Contains(u.Username, filter) {
				out = append(out, u)
			}
		}
	}
	writeForumJSON(w, http.StatusOK, out)
}

func (f *FakeForum) createPost(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title    string `json:"title"`
		Raw      string `json:"raw"`
		Category int64  `json:"category"`
		TopicID  int64  `json:"topic_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeForumJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{err.Error()}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	p := ForumPost{ID: f.nextID, TopicID: in.TopicID, Title: in.Title, Raw: in.Raw, Category: in.Category, Username: r.Header.Get("Api-Username")}
	if p.TopicID == 0 {
		p.TopicID = p.ID + 1000
	}
	f.posts = append(f.posts, p)
	writeForumJSON(w, http.StatusOK, map[string]any{
		"id":          p.ID,
		"topic_id":    p.TopicID,
		"post_number": 1,
		"username":    p.Username,
		"cooked":      "<p>" + p.Raw + "</p>",
		"created_at":  time.Now().UTC(),
	})
}

func (f *FakeForum) like(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID   int64 `json:"id"`
		Type int   `json:"post_action_type_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Type != 2 {
		writeForumJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"bad like"}})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, p := range f.posts {
		if p.ID == in.ID {
			found = true
			break
		}
	}
	if !found {
		writeForumJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"The requested URL or resource could not be found."}})
		return
	}
	f.likes[in.ID] = append(f.likes[in.ID], r.Header.Get("Api-Username"))
	writeForumJSON(w, http.StatusOK, map[string]any{"id": in.ID})
}

func (f *FakeForum) latest(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	topics := []map[string]any{}
	for _, p := range f.posts {
		if p.Title != "" {
			topics = append(topics, map[string]any{"id": p.TopicID, "title": p.Title, "posts_count": 1, "category_id": p.Category})
		}
	}
	writeForumJSON(w, http.StatusOK, map[string]any{"topic_list": map[string]any{"topics": topics}})
}

func (f *FakeForum) categories(w http.ResponseWriter, r *http.Request) {
	writeForumJSON(w, http.StatusOK, map[string]any{"category_list": map[string]any{"categories": []map[string]any{
		{"id": 1, "name": "General", "slug": "general", "color": "0088CC", "topic_count": 3},
	}}})
}
