package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	gcsapi "google.golang.org/api/storage/v1"
)

// gcsAttachmentStore keeps uploaded attachment blobs in a GCS bucket under
// the user-scoped key layout shared with the local store.
type gcsAttachmentStore struct {
	bucket    string
	keyPrefix string
	objects   *gcsapi.ObjectsService
}

func newGCSAttachmentStore(ctx context.Context, bucket, keyPrefix string) (*gcsAttachmentStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	service, err := gcsapi.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs service: %w", err)
	}

	// Fail at startup rather than on the first upload.
	if _, err := service.Buckets.Get(bucket).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("read gcs bucket attrs: %w", err)
	}

	return &gcsAttachmentStore{
		bucket:    bucket,
		keyPrefix: keyPrefix,
		objects:   service.Objects,
	}, nil
}

func (s *gcsAttachmentStore) Backend() string {
	return "gcs"
}

func (s *gcsAttachmentStore) ObjectKey(userID, fileID, filename string) string {
	return userScopedKey(s.keyPrefix, userID, fileID, filename)
}

func (s *gcsAttachmentStore) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return errors.New("attachment key is required")
	}

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	object := &gcsapi.Object{
		Name:        key,
		ContentType: contentType,
	}
	if _, err := s.objects.Insert(s.bucket, object).Media(bytes.NewReader(data)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write attachment %q: %w", key, err)
	}
	return nil
}

// DeleteObject treats a missing blob as already deleted so a retried file
// delete stays idempotent.
func (s *gcsAttachmentStore) DeleteObject(ctx context.Context, key string) error {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return nil
	}

	err := s.objects.Delete(s.bucket, key).Context(ctx).Do()
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete attachment %q: %w", key, err)
}
