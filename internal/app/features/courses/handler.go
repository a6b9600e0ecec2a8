// internal/app/features/courses/handler.go
package courses

import (
	"errors"
	"net/http"
	"strings"

	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	coursestore "github.com/dalemusser/commonshub/internal/app/store/courses"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the courses of one community. Reads are public; writes
// are limited to the community's creator.
type Handler struct {
	Communities *communitystore.Store
	Courses     *coursestore.Store
	ErrLog      *apierr.ErrorLogger
	Log         *zap.Logger
}

func NewHandler(communities *communitystore.Store, courses *coursestore.Store, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Communities: communities,
		Courses:     courses,
		ErrLog:      errLog,
		Log:         logger,
	}
}

// community loads the community named in the path. It writes the error
// response and returns false when the request cannot continue.
func (h *Handler) community(w http.ResponseWriter, r *http.Request) (models.Community, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "communityId"))
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid community id", err)
		return models.Community{}, false
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "course community")
	defer cancel()

	c, err := h.Communities.GetByID(ctx, id)
	if errors.Is(err, communitystore.ErrNotFound) {
		h.ErrLog.NotFound(w, r, "Community not found")
		return models.Community{}, false
	}
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load community", err)
		return models.Community{}, false
	}
	return c, true
}

// authorize reports whether uid may change the community's courses.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, c models.Community, bodyUID string) (string, bool) {
	uid := auth.ResolveUID(r, bodyUID)
	if uid == "" {
		uid = strings.TrimSpace(r.URL.Query().Get("userId"))
	}
	if uid == "" {
		h.ErrLog.Unauthorized(w, r, "Sign in to manage courses")
		return "", false
	}
	if uid != c.Creator.UID {
		h.ErrLog.Forbidden(w, r, "Only the community creator can manage courses")
		return "", false
	}
	return uid, true
}

func courseID(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, "courseId"))
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, coursestore.ErrNotFound) {
		h.ErrLog.NotFound(w, r, "Course not found")
		return
	}
	h.ErrLog.ServerError(w, r, msg, err)
}
