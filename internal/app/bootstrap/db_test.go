package bootstrap

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewUploader(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	tests := []struct {
		name    string
		cfg     AppConfig
		wantNil bool
		want    string
	}{
		{"blank disables", AppConfig{}, true, ""},
		{"cloudinary without secret", AppConfig{StorageType: "cloudinary", CloudinaryCloudName: "demo", CloudinaryAPIKey: "k"}, true, ""},
		{"cloudinary", AppConfig{StorageType: "cloudinary", CloudinaryCloudName: "demo", CloudinaryAPIKey: "k", CloudinaryAPISecret: "s"}, false, "cloudinary"},
		{"local", AppConfig{StorageType: "local", StorageLocalPath: t.TempDir(), StorageLocalURL: "/files"}, false, "local"},
	}
	for _, tc := range tests {
		u, err := newUploader(ctx, tc.cfg, log)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if tc.wantNil {
			if u != nil {
				t.Errorf("%s: got %s uploader, want nil", tc.name, u.Name())
			}
			continue
		}
		if u == nil || u.Name() != tc.want {
			t.Errorf("%s: got %v, want %s", tc.name, u, tc.want)
		}
	}
}

func TestNewUploader_S3NeedsBucket(t *testing.T) {
	if _, err := newUploader(context.Background(), AppConfig{StorageType: "s3"}, zap.NewNop()); err == nil {
		t.Error("expected error for s3 without a bucket")
	}
}
