package reports

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"civicpulse/models"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.Report
	order []string // insertion order, oldest first
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*models.Report{}, now: time.Now}
}

func (m *MemoryRepository) Create(ctx context.Context, in models.NewReport) (models.Report, error) {
	if err := ctx.Err(); err != nil {
		return models.Report{}, err
	}
	now := m.now().UTC()
	r := newReport(uuid.NewString(), in, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.ID] = &r
	m.order = append(m.order, r.ID)
	return r, nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return models.Report{}, ErrNotFound
	}
	return *r, nil
}

func (m *MemoryRepository) List(ctx context.Context, q Query) ([]models.Report, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := len(m.order) - 1
	if q.Cursor != "" {
		idx := -1
		for i, id := range m.order {
			if id == q.Cursor {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, "", ErrInvalidCursor
		}
		start = idx - 1
	}

	limit := q.limit()
	items := make([]models.Report, 0, limit)
	for i := start; i >= 0; i-- {
		r := m.byID[m.order[i]]
		if !matches(*r, q) {
			continue
		}
		if len(items) == limit {
			return items, items[len(items)-1].ID, nil
		}
		items = append(items, *r)
	}
	return items, "", nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, id string, to models.Status) (models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return models.Report{}, ErrNotFound
	}
	if !r.Status.CanMoveTo(to) {
		return models.Report{}, ErrStatusConflict
	}
	r.Status = to
	r.UpdatedAt = m.now().UTC()
	return *r, nil
}

func matches(r models.Report, q Query) bool {
	return (q.OwnerID == "" || r.OwnerID == q.OwnerID) &&
		(q.IssueType == "" || r.IssueType == q.IssueType) &&
		(q.Status == "" || r.Status == q.Status)
}

// newReport applies the server-side defaults shared by every backend.
func newReport(id string, in models.NewReport, now time.Time) models.Report {
	return models.Report{
		ID:          id,
		OwnerID:     in.OwnerID,
		EvidenceKey: in.EvidenceKey,
		EvidenceURL: in.EvidenceURL,
		Latitude:    in.Location.Latitude,
		Longitude:   in.Location.Longitude,
		Address:     in.Location.Address,
		IssueType:   in.IssueType,
		Urgency:     in.Urgency,
		Description: in.Description,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
