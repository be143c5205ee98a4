package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSUploader ships evidence packs to a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

// NewGCSUploader creates an uploader using application default credentials.
func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: gcs client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

// Upload writes the pack under key and returns the object location.
func (u *GCSUploader) Upload(ctx context.Context, key string, pack []byte, packChecksum string) (string, error) {
	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/zip"
	w.Metadata = map[string]string{"pack-sha256": packChecksum}

	if _, err := w.Write(pack); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("export: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("export: gcs close %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, key), nil
}

// Close closes the underlying client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
