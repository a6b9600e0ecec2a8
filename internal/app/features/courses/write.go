package courses

import (
	"net/http"
	"strings"

	coursestore "github.com/dalemusser/commonshub/internal/app/store/courses"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/commonshub/internal/app/system/inputval"
	"github.com/dalemusser/commonshub/internal/app/system/normalize"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/domain/models"
	"go.uber.org/zap"
)

// courseInput is the create body. On update every field is optional.
type courseInput struct {
	UserID      string                 `json:"userId"`
	Title       *string                `json:"title" validate:"omitempty,max=200" label:"Title"`
	Description *string                `json:"description" validate:"omitempty,max=10000" label:"Description"`
	Thumbnail   *string                `json:"thumbnail" validate:"omitempty,url" label:"Thumbnail"`
	Sections    []models.CourseSection `json:"sections" validate:"omitempty,dive" label:"Sections"`
}

func (in *courseInput) clean() {
	if in.Title != nil {
		t := normalize.Name(*in.Title)
		in.Title = &t
	}
	if in.Description != nil {
		d := htmlsanitize.PlainText(*in.Description)
		in.Description = &d
	}
	if in.Thumbnail != nil {
		u := strings.TrimSpace(*in.Thumbnail)
		in.Thumbnail = &u
	}
	for i := range in.Sections {
		in.Sections[i].Title = normalize.Name(in.Sections[i].Title)
		if in.Sections[i].Videos == nil {
			in.Sections[i].Videos = []models.CourseVideo{}
		}
		for j := range in.Sections[i].Videos {
			v := &in.Sections[i].Videos[j]
			v.Title = normalize.Name(v.Title)
			v.URL = strings.TrimSpace(v.URL)
		}
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, requireTitle bool) (courseInput, bool) {
	var in courseInput
	if err := apierr.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid request body", err)
		return in, false
	}
	in.clean()
	if res := inputval.Validate(in); res.HasErrors() {
		h.ErrLog.Invalid(w, r, res.First(), res.Fields())
		return in, false
	}
	if requireTitle && (in.Title == nil || *in.Title == "") {
		h.ErrLog.Invalid(w, r, "Title is required", map[string]string{"title": "Title is required"})
		return in, false
	}
	if in.Title != nil && *in.Title == "" {
		h.ErrLog.Invalid(w, r, "Title cannot be empty", map[string]string{"title": "Title cannot be empty"})
		return in, false
	}
	return in, true
}

// HandleCreate handles POST /.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.community(w, r)
	if !ok {
		return
	}
	in, ok := h.decode(w, r, true)
	if !ok {
		return
	}
	uid, ok := h.authorize(w, r, c, in.UserID)
	if !ok {
		return
	}

	course := models.Course{
		CommunityID: c.ID,
		Title:       *in.Title,
		CreatedBy:   uid,
		Sections:    in.Sections,
	}
	if in.Description != nil {
		course.Description = *in.Description
	}
	if in.Thumbnail != nil {
		course.Thumbnail = *in.Thumbnail
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "course create")
	defer cancel()

	created, err := h.Courses.Create(ctx, course)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to create course", err)
		return
	}
	h.Log.Info("course created",
		zap.String("community_id", c.ID.Hex()),
		zap.String("course_id", created.ID.Hex()),
		zap.String("uid", uid))
	apierr.WriteJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PUT /{courseId}. Omitted fields are unchanged.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.community(w, r)
	if !ok {
		return
	}
	id, err := courseID(r)
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid course id", err)
		return
	}
	in, ok := h.decode(w, r, false)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, c, in.UserID); !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "course update")
	defer cancel()

	updated, err := h.Courses.Update(ctx, c.ID, id, coursestore.Patch{
		Title:       in.Title,
		Description: in.Description,
		Thumbnail:   in.Thumbnail,
		Sections:    in.Sections,
	})
	if err != nil {
		h.writeStoreError(w, r, "Failed to update course", err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /{courseId}. The caller is named by the
// session or the userId query parameter.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.community(w, r)
	if !ok {
		return
	}
	id, err := courseID(r)
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid course id", err)
		return
	}
	uid, ok := h.authorize(w, r, c, "")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "course delete")
	defer cancel()

	if err := h.Courses.Delete(ctx, c.ID, id); err != nil {
		h.writeStoreError(w, r, "Failed to delete course", err)
		return
	}
	h.Log.Info("course deleted",
		zap.String("community_id", c.ID.Hex()),
		zap.String("course_id", id.Hex()),
		zap.String("uid", uid))
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Course deleted", "courseId": id.Hex()})
}
