package media

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
)

// StoreUploader puts objects into a waffle storage backend (local disk or
// S3) under <kind>/YYYY/MM/<uuid><ext>.
type StoreUploader struct {
	Store storage.Store
	now   func() time.Time
}

func NewStoreUploader(store storage.Store) *StoreUploader {
	return &StoreUploader{Store: store, now: time.Now}
}

func (u *StoreUploader) Name() string { return u.Store.Backend() }

func (u *StoreUploader) Upload(ctx context.Context, obj Object) (Result, error) {
	key := objectKey(obj.Kind, u.clock().UTC(), uuid.NewString(), obj.Filename)

	ct := obj.ContentType
	if ct == "" {
		ct = storage.DetectContentType(key, nil)
	}
	err := u.Store.Put(ctx, key, obj.Body, &storage.PutOptions{
		ContentType:  ct,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return Result{}, fmt.Errorf("store %s: %w", key, err)
	}
	return Result{URL: u.Store.URL(key), PublicID: key, Bytes: obj.Size, Backend: u.Name()}, nil
}

func (u *StoreUploader) clock() time.Time {
	if u.now != nil {
		return u.now()
	}
	return time.Now()
}
