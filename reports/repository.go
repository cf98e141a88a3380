// Package reports persists civic issue reports.
package reports

import (
	"context"
	"errors"

	"civicpulse/models"
)

var (
	ErrNotFound       = errors.New("report not found")
	ErrStatusConflict = errors.New("status transition not allowed")
	ErrInvalidCursor  = errors.New("invalid cursor")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query filters List. Empty fields match everything.
type Query struct {
	OwnerID   string
	IssueType models.IssueType
	Status    models.Status
	Cursor    string
	Limit     int
}

func (q Query) limit() int {
	switch {
	case q.Limit < 1:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	}
	return q.Limit
}

// Repository stores reports. Create always yields a pending report with a
// store-assigned id; only UpdateStatus changes a report afterwards.
type Repository interface {
	Create(ctx context.Context, in models.NewReport) (models.Report, error)
	Get(ctx context.Context, id string) (models.Report, error)
	// List returns newest first plus the cursor of the next page ("" at the end).
	List(ctx context.Context, q Query) ([]models.Report, string, error)
	// UpdateStatus moves a report forward; backward moves return ErrStatusConflict.
	UpdateStatus(ctx context.Context, id string, to models.Status) (models.Report, error)
}

// Each walks every report matching q, page by page.
func Each(ctx context.Context, repo Repository, q Query, fn func(models.Report) error) error {
	q.Limit = MaxLimit
	for {
		items, next, err := repo.List(ctx, q)
		if err != nil {
			return err
		}
		for _, r := range items {
			if err := fn(r); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		q.Cursor = next
	}
}

// fromStatuses lists every status that may move to `to`.
func fromStatuses(to models.Status) []models.Status {
	var out []models.Status
	for _, s := range []models.Status{models.StatusPending, models.StatusInProgress, models.StatusResolved} {
		if s.CanMoveTo(to) {
			out = append(out, s)
		}
	}
	return out
}
