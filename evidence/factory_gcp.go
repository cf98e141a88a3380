//go:build gcp

package evidence

import (
	"context"

	"civicpulse/config"
)

func newGCSStore(ctx context.Context, cfg *config.Config) (Store, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: cfg.GCSBucket})
}
