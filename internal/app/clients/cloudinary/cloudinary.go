// Package cloudinary wraps the Cloudinary upload API.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Client performs signed uploads for one cloud.
type Client struct {
	cld *cld.Cloudinary
}

// New returns an upload client. baseURL overrides the upload host and may be
// empty for the public API. A zero timeout keeps the SDK default.
func New(baseURL, cloudName, apiKey, apiSecret string, timeout time.Duration) (*Client, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary: cloud name, api key and api secret are required")
	}
	c, err := cld.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	if baseURL != "" {
		c.Upload.Config.API.UploadPrefix = strings.TrimRight(baseURL, "/")
	}
	if secs := int64(timeout / time.Second); secs > 0 {
		c.Upload.Config.API.UploadTimeout = secs
		c.Upload.Config.API.Timeout = secs
	}
	return &Client{cld: c}, nil
}

// UploadResult is the subset of the upload response the API returns.
type UploadResult struct {
	PublicID     string
	SecureURL    string
	URL          string
	ResourceType string
	Format       string
	Bytes        int64
	Width        int
	Height       int
}

// Upload sends r as resourceType ("image", "video" or "auto"). An *os.File
// larger than the SDK chunk size is sent in chunks.
func (c *Client) Upload(ctx context.Context, resourceType, filename, folder string, r io.Reader) (UploadResult, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		ResourceType:     resourceType,
		Folder:           folder,
		FilenameOverride: filename,
		UniqueFilename:   api.Bool(true),
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return UploadResult{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return UploadResult{
		PublicID:     res.PublicID,
		SecureURL:    res.SecureURL,
		URL:          res.URL,
		ResourceType: res.ResourceType,
		Format:       res.Format,
		Bytes:        int64(res.Bytes),
		Width:        res.Width,
		Height:       res.Height,
	}, nil
}
