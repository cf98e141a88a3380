// Package location turns a device position fix into a models.Location with a
// best-effort street address.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civicpulse/logging"
	"civicpulse/models"
)

// PositionOptions mirrors the options a device positioning API accepts.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

var DefaultOptions = PositionOptions{
	HighAccuracy: true,
	Timeout:      10 * time.Second,
	MaximumAge:   60 * time.Second,
}

type Position struct {
	Latitude  float64
	Longitude float64
	AccuracyM float64
	Timestamp time.Time
}

// PositionSource yields the device's current position.
type PositionSource interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// Geocoder resolves coordinates to a human-readable address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

type Provider struct {
	geocoder       Geocoder
	opts           PositionOptions
	geocodeTimeout time.Duration
	now            func() time.Time
	log            *slog.Logger
}

// NewProvider builds a Provider. geocoder may be nil, in which case
// addresses are never filled in.
func NewProvider(geocoder Geocoder, opts PositionOptions, geocodeTimeout time.Duration) *Provider {
	if geocodeTimeout <= 0 {
		geocodeTimeout = 5 * time.Second
	}
	return &Provider{
		geocoder:       geocoder,
		opts:           opts,
		geocodeTimeout: geocodeTimeout,
		now:            time.Now,
		log:            logging.New("location"),
	}
}

// WithClock overrides the clock for testing.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// Acquire reads a fix from src and reverse-geocodes it. Geocoding failures
// never fail the call; the address is simply left empty.
func (p *Provider) Acquire(ctx context.Context, src PositionSource) (models.Location, error) {
	if src == nil {
		return models.Location{}, wrap(KindPositionUnavailable, errors.New("no position source"))
	}

	pctx := ctx
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	pos, err := src.CurrentPosition(pctx, p.opts)
	if err != nil {
		var lerr *Error
		switch {
		case errors.As(err, &lerr):
			return models.Location{}, lerr
		case errors.Is(err, context.DeadlineExceeded):
			return models.Location{}, wrap(KindTimeout, err)
		default:
			return models.Location{}, wrap(KindPositionUnavailable, err)
		}
	}

	if p.opts.MaximumAge > 0 && !pos.Timestamp.IsZero() {
		if age := p.now().Sub(pos.Timestamp); age > p.opts.MaximumAge {
			return models.Location{}, wrap(KindPositionUnavailable,
				fmt.Errorf("cached fix is %s old (max %s)", age.Round(time.Second), p.opts.MaximumAge))
		}
	}

	loc := models.Location{Latitude: pos.Latitude, Longitude: pos.Longitude}
	if !loc.Valid() {
		return models.Location{}, wrap(KindPositionUnavailable,
			fmt.Errorf("coordinates out of range: %f, %f", pos.Latitude, pos.Longitude))
	}

	loc.Address = p.reverse(ctx, loc.Latitude, loc.Longitude)
	return loc, nil
}

// Reverse is the advisory address lookup on its own, used by /api/locate.
func (p *Provider) Reverse(ctx context.Context, lat, lng float64) string {
	return p.reverse(ctx, lat, lng)
}

func (p *Provider) reverse(ctx context.Context, lat, lng float64) string {
	if p.geocoder == nil {
		return ""
	}
	gctx, cancel := context.WithTimeout(ctx, p.geocodeTimeout)
	defer cancel()

	addr, err := p.geocoder.Reverse(gctx, lat, lng)
	if err != nil {
		p.log.Debug("reverse geocode failed", "lat", lat, "lng", lng, "error", err)
		return ""
	}
	return addr
}
