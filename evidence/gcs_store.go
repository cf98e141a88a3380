//go:build gcp

package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	publicBase string
	now        func() time.Time
}

type GCSStoreConfig struct {
	Bucket     string
	PublicBase string
}

func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("GCS_BUCKET is required for gcs evidence storage")
	}
	// Uses ADC by default
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	base := cfg.PublicBase
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, publicBase: base, now: time.Now}, nil
}

func (s *GCSStore) Upload(ctx context.Context, ownerID string, data []byte, ext string) (Ref, error) {
	ref, err := NewKey(ownerID, ext, s.now())
	if err != nil {
		return "", err
	}
	// DoesNotExist precondition: a key is written at most once.
	obj := s.client.Bucket(s.bucket).Object(string(ref)).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = ContentType(ref)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return ref, nil
}

func (s *GCSStore) PublicURL(ref Ref) string { return joinURL(s.publicBase, ref) }

func (s *GCSStore) Delete(ctx context.Context, ref Ref) error {
	err := s.client.Bucket(s.bucket).Object(string(ref)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", ref, err)
	}
	return nil
}

func (s *GCSStore) Exists(ctx context.Context, ref Ref) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(string(ref)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
