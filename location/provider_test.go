package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	addr  string
	err   error
	delay time.Duration
}

func (g stubGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.addr, g.err
}

type blockingSource struct{}

func (blockingSource) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	<-ctx.Done()
	return Position{}, ctx.Err()
}

func ptr(f float64) *float64 { return &f }

func TestAcquire_WithAddress(t *testing.T) {
	p := NewProvider(stubGeocoder{addr: "12 Main St"}, DefaultOptions, time.Second)

	loc, err := p.Acquire(context.Background(), ReportedFix{Latitude: ptr(40.7), Longitude: ptr(-74.0)})
	require.NoError(t, err)
	assert.Equal(t, 40.7, loc.Latitude)
	assert.Equal(t, -74.0, loc.Longitude)
	assert.Equal(t, "12 Main St", loc.Address)
}

func TestAcquire_GeocodeFailureStillSucceeds(t *testing.T) {
	p := NewProvider(stubGeocoder{err: errors.New("quota")}, DefaultOptions, time.Second)

	loc, err := p.Acquire(context.Background(), ReportedFix{Latitude: ptr(1), Longitude: ptr(2)})
	require.NoError(t, err)
	assert.Empty(t, loc.Address)
}

func TestAcquire_GeocodeTimeoutStillSucceeds(t *testing.T) {
	p := NewProvider(stubGeocoder{addr: "late", delay: time.Second}, DefaultOptions, 10*time.Millisecond)

	loc, err := p.Acquire(context.Background(), ReportedFix{Latitude: ptr(1), Longitude: ptr(2)})
	require.NoError(t, err)
	assert.Empty(t, loc.Address)
}

func TestAcquire_DistinctErrorKinds(t *testing.T) {
	p := NewProvider(nil, DefaultOptions, time.Second)

	for code, want := range map[int]error{1: ErrPermissionDenied, 2: ErrPositionUnavailable, 3: ErrTimeout} {
		_, err := p.Acquire(context.Background(), ReportedFix{ErrorCode: code})
		assert.ErrorIs(t, err, want, "code %d", code)
	}

	_, err := p.Acquire(context.Background(), ReportedFix{})
	assert.ErrorIs(t, err, ErrPositionUnavailable)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestAcquire_SourceTimeout(t *testing.T) {
	opts := DefaultOptions
	opts.Timeout = 10 * time.Millisecond
	p := NewProvider(nil, opts, time.Second)

	_, err := p.Acquire(context.Background(), blockingSource{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAcquire_StaleFixRejected(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewProvider(nil, DefaultOptions, time.Second).WithClock(func() time.Time { return now })

	_, err := p.Acquire(context.Background(), ReportedFix{
		Latitude: ptr(1), Longitude: ptr(2), FixAt: now.Add(-2 * time.Minute),
	})
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	_, err = p.Acquire(context.Background(), ReportedFix{
		Latitude: ptr(1), Longitude: ptr(2), FixAt: now.Add(-30 * time.Second),
	})
	assert.NoError(t, err)
}

func TestAcquire_OutOfRange(t *testing.T) {
	p := NewProvider(nil, DefaultOptions, time.Second)

	_, err := p.Acquire(context.Background(), ReportedFix{Latitude: ptr(91), Longitude: ptr(0)})
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}

func TestGuidance(t *testing.T) {
	var lerr *Error
	require.ErrorAs(t, FromCode(1), &lerr)
	assert.Contains(t, lerr.Guidance(), "denied")
}

func TestOpenCage_Reverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "1.5,2.25", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"results":[{"formatted":"Somewhere 1"}]}`))
	}))
	defer srv.Close()

	addr, err := NewOpenCage(srv.URL, "k", srv.Client()).Reverse(context.Background(), 1.5, 2.25)
	require.NoError(t, err)
	assert.Equal(t, "Somewhere 1", addr)
}

func TestOpenCage_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad" {
			http.Error(w, "invalid key", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenCage(srv.URL, "bad", srv.Client()).Reverse(context.Background(), 1, 2)
	assert.ErrorContains(t, err, "401")

	_, err = NewOpenCage(srv.URL, "ok", srv.Client()).Reverse(context.Background(), 1, 2)
	assert.ErrorContains(t, err, "no results")
}
