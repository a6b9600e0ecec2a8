package forum

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type postRequest struct {
	memberRef
	Title    string `json:"title"`
	Raw      string `json:"raw"`
	Category int64  `json:"category"`
}

// HandleCreatePost handles POST /discourse/posts: a new topic posted as
// the member's forum account.
func (h *Handler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	var in postRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	uid, cid, ok := h.parseRef(w, r, in.memberRef)
	if !ok {
		return
	}
	title := htmlsanitize.PlainText(in.Title)
	raw := htmlsanitize.Markdown(in.Raw)
	if title == "" || raw == "" {
		h.ErrLog.Invalid(w, r, "title and raw are required", map[string]string{"title": "required", "raw": "required"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "forum post")
	defer cancel()
	r = r.WithContext(ctx)

	c, m, ok := h.actor(w, r, uid, cid)
	if !ok {
		return
	}
	post, err := h.Client(c.DiscourseURL).As(m.DiscourseUsername).CreateTopic(ctx, discourse.NewTopic{
		Title:    title,
		Raw:      raw,
		Category: in.Category,
	})
	if err != nil {
		h.writeForumError(w, r, "create_topic", err)
		return
	}
	h.count("create_topic", nil)
	h.invalidateFeed(r, cid.Hex())
	h.Log.Info("forum topic created", zap.String("uid", uid), zap.Int64("topic_id", post.TopicID))
	apierr.WriteJSON(w, http.StatusCreated, post)
}

// HandleReply handles POST /discourse/posts/{id}/replies, where id is the
// topic being answered.
func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	topicID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || topicID <= 0 {
		h.ErrLog.BadRequest(w, r, "Invalid topic id", err)
		return
	}
	var in postRequest
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	uid, cid, ok := h.parseRef(w, r, in.memberRef)
	if !ok {
		return
	}
	raw := htmlsanitize.Markdown(in.Raw)
	if strings.TrimSpace(raw) == "" {
		h.ErrLog.Invalid(w, r, "raw is required", map[string]string{"raw": "required"})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "forum reply")
	defer cancel()
	r = r.WithContext(ctx)

	c, m, ok := h.actor(w, r, uid, cid)
	if !ok {
		return
	}
	post, err := h.Client(c.DiscourseURL).As(m.DiscourseUsername).Reply(ctx, topicID, raw)
	if err != nil {
		h.writeForumError(w, r, "reply", err)
		return
	}
	h.count("reply", nil)
	h.invalidateFeed(r, cid.Hex())
	apierr.WriteJSON(w, http.StatusCreated, post)
}

// HandleLike handles POST /discourse/posts/{id}/like.
func (h *Handler) HandleLike(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || postID <= 0 {
		h.ErrLog.BadRequest(w, r, "Invalid post id", err)
		return
	}
	var in memberRef
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return
	}
	uid, cid, ok := h.parseRef(w, r, in)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "forum like")
	defer cancel()
	r = r.WithContext(ctx)

	c, m, ok := h.actor(w, r, uid, cid)
	if !ok {
		return
	}
	if err := h.Client(c.DiscourseURL).As(m.DiscourseUsername).Like(ctx, postID); err != nil {
		h.writeForumError(w, r, "like", err)
		return
	}
	h.count("like", nil)
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"message": "Post liked", "postId": postID})
}
