// Package media stores uploaded images and videos on the configured backend.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dalemusser/commonshub/internal/app/clients/cloudinary"
)

// Kind is the sort of file being uploaded.
type Kind string

const (
	Image Kind = "image"
	Video Kind = "video"
)

// Object is one file ready to be stored. Size must match Body's length.
type Object struct {
	Kind        Kind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result describes where an object was stored.
type Result struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Bytes    int64  `json:"bytes"`
	Backend  string `json:"backend"`
}

// Uploader stores objects.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (Result, error)
	Name() string
}

var ErrTooLarge = errors.New("file exceeds the upload size limit")

// Spool copies at most max bytes of src into a temp file and rewinds it.
// The caller must Close and remove the file; see Discard.
func Spool(src io.Reader, max int64) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "commonshub-upload-*")
	if err != nil {
		return nil, 0, err
	}
	n, err := io.Copy(f, io.LimitReader(src, max+1))
	if err == nil && n > max {
		err = ErrTooLarge
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		Discard(f)
		return nil, 0, err
	}
	return f, n, nil
}

// Discard closes and removes a spooled file.
func Discard(f *os.File) {
	if f == nil {
		return
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// CloudinaryUploader sends objects to Cloudinary as signed uploads.
type CloudinaryUploader struct {
	Client *cloudinary.Client
	Folder string
}

func (u *CloudinaryUploader) Name() string { return "cloudinary" }

func (u *CloudinaryUploader) Upload(ctx context.Context, obj Object) (Result, error) {
	res, err := u.Client.Upload(ctx, string(obj.Kind), safeName(obj.Filename), u.Folder, obj.Body)
	if err != nil {
		return Result{}, err
	}
	url := res.SecureURL
	if url == "" {
		url = res.URL
	}
	return Result{URL: url, PublicID: res.PublicID, Bytes: res.Bytes, Backend: u.Name()}, nil
}

// safeName keeps only the base name so client paths never reach a backend.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

// objectKey places an upload under <kind>/YYYY/MM/<id><ext>.
func objectKey(kind Kind, now time.Time, id, filename string) string {
	ext := strings.ToLower(filepath.Ext(safeName(filename)))
	return fmt.Sprintf("%s/%04d/%02d/%s%s", kind, now.Year(), now.Month(), id, ext)
}
