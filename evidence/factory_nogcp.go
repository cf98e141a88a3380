//go:build !gcp

package evidence

import (
	"context"
	"fmt"

	"civicpulse/config"
)

func newGCSStore(ctx context.Context, cfg *config.Config) (Store, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
