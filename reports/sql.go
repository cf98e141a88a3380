package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"civicpulse/models"
)

// Schema works on both postgres and sqlite.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	evidence_key TEXT NOT NULL,
	evidence_url TEXT NOT NULL,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	issue_type   TEXT NOT NULL,
	urgency      TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_owner_idx ON reports (owner_id, created_at);
CREATE INDEX IF NOT EXISTS reports_created_idx ON reports (created_at, id);
`

const reportColumns = `id, owner_id, evidence_key, evidence_url, latitude, longitude, address,
	issue_type, urgency, description, status, created_at, updated_at`

// SQLRepository stores reports through database/sql (lib/pq or modernc sqlite).
type SQLRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

// Migrate applies Schema statement by statement.
func (s *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLRepository) Create(ctx context.Context, in models.NewReport) (models.Report, error) {
	r := newReport(uuid.NewString(), in, s.now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.OwnerID, r.EvidenceKey, r.EvidenceURL, r.Latitude, r.Longitude, r.Address,
		string(r.IssueType), string(r.Urgency), r.Description, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return models.Report{}, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

func (s *SQLRepository) Get(ctx context.Context, id string) (models.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, ErrNotFound
	}
	return r, err
}

func (s *SQLRepository) List(ctx context.Context, q Query) ([]models.Report, string, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.OwnerID != "" {
		where = append(where, "owner_id = "+arg(q.OwnerID))
	}
	if q.IssueType != "" {
		where = append(where, "issue_type = "+arg(string(q.IssueType)))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(string(q.Status)))
	}
	if q.Cursor != "" {
		var createdAt time.Time
		err := s.db.QueryRowContext(ctx, `SELECT created_at FROM reports WHERE id = $1`, q.Cursor).Scan(&createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrInvalidCursor
		}
		if err != nil {
			return nil, "", err
		}
		where = append(where, fmt.Sprintf("(created_at < %s OR (created_at = %s AND id < %s))",
			arg(createdAt), arg(createdAt), arg(q.Cursor)))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := q.limit()
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	items := make([]models.Report, 0, limit)
	var next string
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, "", err
		}
		if len(items) == limit {
			next = items[len(items)-1].ID
			break
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return items, next, nil
}

func (s *SQLRepository) UpdateStatus(ctx context.Context, id string, to models.Status) (models.Report, error) {
	from := fromStatuses(to)
	if len(from) == 0 {
		return models.Report{}, ErrStatusConflict
	}

	args := []any{string(to), s.now().UTC(), id}
	marks := make([]string, len(from))
	for i, st := range from {
		args = append(args, string(st))
		marks[i] = fmt.Sprintf("$%d", len(args))
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $1, updated_at = $2 WHERE id = $3 AND status IN (`+strings.Join(marks, ", ")+`)`,
		args...)
	if err != nil {
		return models.Report{}, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Report{}, err
	}

	r, err := s.Get(ctx, id)
	if err != nil {
		return models.Report{}, err
	}
	if affected == 0 {
		return models.Report{}, ErrStatusConflict
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (models.Report, error) {
	var (
		r                         models.Report
		issueType, urgency, state string
	)
	err := sc.Scan(&r.ID, &r.OwnerID, &r.EvidenceKey, &r.EvidenceURL, &r.Latitude, &r.Longitude,
		&r.Address, &issueType, &urgency, &r.Description, &state, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Report{}, err
	}
	r.IssueType = models.IssueType(issueType)
	r.Urgency = models.Urgency(urgency)
	r.Status = models.Status(state)
	return r, nil
}
