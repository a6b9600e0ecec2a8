package courses

import (
	"net/http"

	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
)

// ServeList handles GET /: the community's courses, newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	c, ok := h.community(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "course list")
	defer cancel()

	list, err := h.Courses.ListByCommunity(ctx, c.ID)
	if err != nil {
		h.ErrLog.ServerError(w, r, "Failed to load courses", err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, list)
}

// ServeCourse handles GET /{courseId}.
func (h *Handler) ServeCourse(w http.ResponseWriter, r *http.Request) {
	c, ok := h.community(w, r)
	if !ok {
		return
	}
	id, err := courseID(r)
	if err != nil {
		h.ErrLog.BadRequest(w, r, "Invalid course id", err)
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "course get")
	defer cancel()

	course, err := h.Courses.Get(ctx, c.ID, id)
	if err != nil {
		h.writeStoreError(w, r, "Failed to load course", err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, course)
}
