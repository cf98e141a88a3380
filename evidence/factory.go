package evidence

import (
	"context"
	"fmt"

	"civicpulse/config"
)

// BackendType names an evidence storage backend.
type BackendType string

const (
	BackendFS  BackendType = "fs"
	BackendS3  BackendType = "s3"
	BackendGCS BackendType = "gcs"
)

// New creates the evidence store selected by EVIDENCE_BACKEND.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	backend := BackendType(cfg.EvidenceBackend)
	if backend == "" {
		backend = BackendFS
	}

	switch backend {
	case BackendFS:
		return NewFileStore(cfg.UploadDir, cfg.PublicBaseURL)
	case BackendS3:
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	case BackendGCS:
		return newGCSStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported evidence backend: %s", backend)
	}
}
