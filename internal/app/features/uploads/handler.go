// internal/app/features/uploads/handler.go
package uploads

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/media"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// FieldName is the multipart field carrying the file.
const FieldName = "file"

// Limits caps upload size per kind, in bytes.
type Limits struct {
	Image int64
	Video int64
}

func (l Limits) For(k media.Kind) int64 {
	if k == media.Video {
		return l.Video
	}
	return l.Image
}

// Handler accepts image and video uploads and forwards them to the media
// backend. A nil Uploader means uploads are not configured.
type Handler struct {
	Uploader media.Uploader
	Limits   Limits
	Metrics  *metrics.Registry
	ErrLog   *apierr.ErrorLogger
	Log      *zap.Logger
}

func NewHandler(u media.Uploader, limits Limits, m *metrics.Registry, errLog *apierr.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Uploader: u, Limits: limits, Metrics: m, ErrLog: errLog, Log: logger}
}

func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) { h.upload(w, r, media.Image) }
func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) { h.upload(w, r, media.Video) }

// upload streams the file part to a temp file, hands it to the backend and
// removes the temp file on every path.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, kind media.Kind) {
	if h.Uploader == nil {
		apierr.WriteJSON(w, http.StatusServiceUnavailable, apierr.Body{Error: "Uploads are not configured"})
		return
	}
	max := h.Limits.For(kind)
	// Allow for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, max+1<<20)

	part, err := filePart(r)
	if err != nil {
		h.count(kind, "rejected")
		h.ErrLog.BadRequest(w, r, "No file uploaded", err)
		return
	}
	defer part.Close()

	filename := part.FileName()
	contentType := part.Header.Get("Content-Type")
	if !accepts(kind, filename, contentType) {
		h.count(kind, "rejected")
		h.ErrLog.BadRequest(w, r, "Unsupported "+string(kind)+" type", nil)
		return
	}

	f, size, err := media.Spool(part, max)
	if err != nil {
		h.count(kind, "rejected")
		var mbe *http.MaxBytesError
		if errors.Is(err, media.ErrTooLarge) || errors.As(err, &mbe) {
			apierr.WriteJSON(w, http.StatusRequestEntityTooLarge, apierr.Body{Error: media.ErrTooLarge.Error()})
			return
		}
		h.ErrLog.ServerError(w, r, "Failed to read upload", err)
		return
	}
	defer media.Discard(f)
	if size == 0 {
		h.count(kind, "rejected")
		h.ErrLog.BadRequest(w, r, "Uploaded file is empty", nil)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Upload(), h.Log, "media upload")
	defer cancel()

	res, err := h.Uploader.Upload(ctx, media.Object{
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		Body:        f,
	})
	if err != nil {
		h.count(kind, "error")
		h.ErrLog.ServerError(w, r, "Upload failed", err)
		return
	}
	h.count(kind, "ok")
	h.Log.Info("media uploaded",
		zap.String("kind", string(kind)),
		zap.String("backend", res.Backend),
		zap.Int64("bytes", size))
	apierr.WriteJSON(w, http.StatusOK, res)
}

// filePart advances the multipart stream to the file field.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("missing " + FieldName + " field")
		}
		if err != nil {
			return nil, err
		}
		if p.FormName() == FieldName && p.FileName() != "" {
			return p, nil
		}
		_ = p.Close()
	}
}

var extensions = map[media.Kind]map[string]bool{
	media.Image: {".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".svg": false},
	media.Video: {".mp4": true, ".mov": true, ".webm": true, ".mkv": true, ".m4v": true},
}

// accepts checks the declared content type, falling back to the extension
// when the client sent a generic type.
func accepts(kind media.Kind, filename, contentType string) bool {
	mt, _, _ := mime.ParseMediaType(contentType)
	if strings.HasPrefix(mt, string(kind)+"/") && mt != "image/svg+xml" {
		return true
	}
	if mt != "" && mt != "application/octet-stream" {
		return false
	}
	return extensions[kind][strings.ToLower(filepath.Ext(filename))]
}

func (h *Handler) count(kind media.Kind, outcome string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Uploads.WithLabelValues(string(kind), outcome).Inc()
}
