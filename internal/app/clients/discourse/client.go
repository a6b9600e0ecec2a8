// Package discourse talks to a Discourse forum's admin API and implements
// the provider side of Discourse Connect (SSO).
package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls one forum with an admin API key. Requests are made on
// behalf of the configured API username; see As.
type Client struct {
	baseURL     string
	apiKey      string
	apiUsername string
	http        *http.Client
}

// New returns a client for the forum at baseURL.
func New(baseURL, apiKey, apiUsername string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		apiUsername: apiUsername,
		http:        &http.Client{Timeout: timeout},
	}
}

// As returns a copy of c that acts as username.
func (c *Client) As(username string) *Client {
	cp := *c
	cp.apiUsername = username
	return &cp
}

// APIError is a non-2xx response from the forum.
type APIError struct {
	Status int
	Errors []string
	Body   string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("discourse: %d: %s", e.Status, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("discourse: %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the forum.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// ValidationError is returned when the forum rejects a new account.
// Errors holds the forum's per-field messages verbatim.
type ValidationError struct {
	Message string
	Errors  json.RawMessage
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return "discourse rejected user: " + e.Message
	}
	return "discourse rejected user"
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", c.apiUsername)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("discourse %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ae := &APIError{Status: resp.StatusCode, Body: string(raw)}
		var payload struct {
			Errors []string `json:"errors"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			ae.Errors = payload.Errors
		}
		return ae
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Users                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// NewUser is the payload for account creation.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Active   bool   `json:"active"`
	Approved bool   `json:"approved"`
}

// CreateUserResult is the forum's answer to a successful creation. UserID
// is absent on some forum versions.
type CreateUserResult struct {
	Success bool   `json:"success"`
	Active  bool   `json:"active"`
	Message string `json:"message"`
	UserID  *int64 `json:"user_id"`
}

// CreateUser creates an account. A success:false answer becomes a
// *ValidationError carrying the forum's errors payload.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (CreateUserResult, error) {
	var out struct {
		CreateUserResult
		Errors json.RawMessage `json:"errors"`
	}
	err := c.do(ctx, http.MethodPost, "/users.json", nil, u, &out)
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) && ae.Status == http.StatusUnprocessableEntity {
			return CreateUserResult{}, &ValidationError{Message: strings.Join(ae.Errors, "; "), Errors: mustJSON(ae.Errors)}
		}
		return CreateUserResult{}, err
	}
	if !out.Success {
		return CreateUserResult{}, &ValidationError{Message: out.Message, Errors: out.Errors}
	}
	return out.CreateUserResult, nil
}

// User is the subset of a forum user we read.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	AvatarTemplate string `json:"avatar_template,omitempty"`
}

// GetUser loads a user by username.
func (c *Client) GetUser(ctx context.Context, username string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/u/"+url.PathEscape(username)+".json", nil, nil, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// SearchActiveUsers lists active users whose email or username matches filter.
func (c *Client) SearchActiveUsers(ctx context.Context, filter string) ([]User, error) {
	q := url.Values{"filter": {filter}, "show_emails": {"true"}}
	var out []User
	if err := c.do(ctx, http.MethodGet, "/admin/users/list/active.json", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Posts                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// Post is a created topic or reply.
type Post struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	TopicSlug  string    `json:"topic_slug,omitempty"`
	PostNumber int       `json:"post_number"`
	Username   string    `json:"username"`
	Cooked     string    `json:"cooked,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTopic starts a topic. Category is optional.
type NewTopic struct {
	Title    string `json:"title"`
	Raw      string `json:"raw"`
	Category int64  `json:"category,omitempty"`
}

func (c *Client) CreateTopic(ctx context.Context, t NewTopic) (Post, error) {
	var p Post
	err := c.do(ctx, http.MethodPost, "/posts.json", nil, t, &p)
	return p, err
}

func (c *Client) Reply(ctx context.Context, topicID int64, raw string) (Post, error) {
	body := map[string]any{"topic_id": topicID, "raw": raw}
	var p Post
	err := c.do(ctx, http.MethodPost, "/posts.json", nil, body, &p)
	return p, err
}

// likeActionType is the forum's post action id for "like".
const likeActionType = 2

func (c *Client) Like(ctx context.Context, postID int64) error {
	body := map[string]any{"id": postID, "post_action_type_id": likeActionType}
	return c.do(ctx, http.MethodPost, "/post_actions.json", nil, body, nil)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Feed                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

type Topic struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	PostsCount int       `json:"posts_count"`
	LikeCount  int       `json:"like_count"`
	CategoryID int64     `json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastPosted time.Time `json:"last_posted_at"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Color       string `json:"color"`
	TopicCount  int    `json:"topic_count"`
	Description string `json:"description_text,omitempty"`
}

// Latest returns the forum's latest topics.
func (c *Client) Latest(ctx context.Context) ([]Topic, error) {
	var out struct {
		TopicList struct {
			Topics []Topic `json:"topics"`
		} `json:"topic_list"`
	}
	if err := c.do(ctx, http.MethodGet, "/latest.json", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.TopicList.Topics, nil
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out struct {
		CategoryList struct {
			Categories []Category `json:"categories"`
		} `json:"category_list"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories.json", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.CategoryList.Categories, nil
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
