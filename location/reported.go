package location

import (
	"context"
	"time"
)

// ReportedFix is a position the client device already obtained and sent
// along with the submission. ErrorCode carries the device's own failure
// code (1 denied, 2 unavailable, 3 timeout) when it could not get a fix.
type ReportedFix struct {
	Latitude  *float64
	Longitude *float64
	AccuracyM float64
	FixAt     time.Time
	ErrorCode int
}

func (f ReportedFix) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, wrap(KindTimeout, err)
	}
	if err := FromCode(f.ErrorCode); err != nil {
		return Position{}, err
	}
	if f.Latitude == nil || f.Longitude == nil {
		return Position{}, ErrPositionUnavailable
	}
	return Position{
		Latitude:  *f.Latitude,
		Longitude: *f.Longitude,
		AccuracyM: f.AccuracyM,
		Timestamp: f.FixAt,
	}, nil
}
