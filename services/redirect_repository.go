package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/andre-fig/backoffice/db"
)

const scheduledRedirectColumns = `id, source_user_id, destination_user_id, sector_code,
		start_date, end_date, status, created_at, updated_at`

// ScheduledRedirectRepository implements RedirectStore on the backoffice database
type ScheduledRedirectRepository struct {
	PG *sql.DB
}

func NewScheduledRedirectRepository(pg *sql.DB) *ScheduledRedirectRepository {
	return &ScheduledRedirectRepository{PG: pg}
}

var _ RedirectStore = (*ScheduledRedirectRepository)(nil)

// Create inserts a new record, generating its ID when empty
func (r *ScheduledRedirectRepository) Create(ctx context.Context, rec *db.ScheduledRedirect) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = db.RedirectStatusScheduled
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.PG.ExecContext(ctx, `
		INSERT INTO scheduled_redirects (id, source_user_id, destination_user_id, sector_code,
			start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.SourceUserID, rec.DestinationUserID, rec.SectorCode,
		rec.StartDate, nullTime(rec.EndDate), string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scheduled redirect: %w", err)
	}
	return nil
}

// Get retrieves a record by ID
func (r *ScheduledRedirectRepository) Get(ctx context.Context, id string) (*db.ScheduledRedirect, error) {
	row := r.PG.QueryRowContext(ctx, `
		SELECT `+scheduledRedirectColumns+`
		FROM scheduled_redirects
		WHERE id = $1
	`, id)

	rec, err := scanScheduledRedirect(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: scheduled redirect %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get scheduled redirect: %w", err)
	}
	return rec, nil
}

// ListByStatus returns records in any of the given statuses ordered by start date
func (r *ScheduledRedirectRepository) ListByStatus(ctx context.Context, statuses ...db.RedirectStatus) ([]db.ScheduledRedirect, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	rows, err := r.PG.QueryContext(ctx, `
		SELECT `+scheduledRedirectColumns+`
		FROM scheduled_redirects
		WHERE status::text = ANY($1::text[])
		ORDER BY start_date ASC
	`, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled redirects: %w", err)
	}
	return collectScheduledRedirects(rows)
}

// ListDueForActivation returns scheduled records whose start date has passed
func (r *ScheduledRedirectRepository) ListDueForActivation(ctx context.Context, now time.Time) ([]db.ScheduledRedirect, error) {
	rows, err := r.PG.QueryContext(ctx, `
		SELECT `+scheduledRedirectColumns+`
		FROM scheduled_redirects
		WHERE status = $1 AND start_date <= $2
		ORDER BY start_date ASC
	`, string(db.RedirectStatusScheduled), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due redirects: %w", err)
	}
	return collectScheduledRedirects(rows)
}

// FindOverlapping returns live records for the same source and sector whose window intersects
func (r *ScheduledRedirectRepository) FindOverlapping(ctx context.Context, sourceUserID, sectorCode string, start time.Time, end *time.Time) ([]db.ScheduledRedirect, error) {
	rows, err := r.PG.QueryContext(ctx, `
		SELECT `+scheduledRedirectColumns+`
		FROM scheduled_redirects
		WHERE source_user_id = $1
		AND sector_code = $2
		AND status::text = ANY($3::text[])
		AND (end_date IS NULL OR end_date > $4)
		AND ($5::timestamp IS NULL OR start_date < $5)
		ORDER BY start_date ASC
	`, sourceUserID, sectorCode,
		pq.Array([]string{string(db.RedirectStatusScheduled), string(db.RedirectStatusActive)}),
		start, nullTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping redirects: %w", err)
	}
	return collectScheduledRedirects(rows)
}

// UpdateStatus performs a compare-and-set on the status column
func (r *ScheduledRedirectRepository) UpdateStatus(ctx context.Context, id string, from, to db.RedirectStatus) error {
	if !db.CanTransitionRedirect(from, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s", ErrConflict, from, to)
	}

	res, err := r.PG.ExecContext(ctx, `
		UPDATE scheduled_redirects
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update redirect status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update redirect status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: redirect %s is no longer %s", ErrConflict, id, from)
	}
	return nil
}

// UpdateEndDate replaces the end date of a SCHEDULED or ACTIVE record.
// A terminal record fails with ErrConflict.
func (r *ScheduledRedirectRepository) UpdateEndDate(ctx context.Context, id string, endDate time.Time) error {
	res, err := r.PG.ExecContext(ctx, `
		UPDATE scheduled_redirects
		SET end_date = $1, updated_at = $2
		WHERE id = $3 AND status IN ('scheduled', 'active')
	`, endDate, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update redirect end date: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update redirect end date: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := r.PG.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM scheduled_redirects WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to update redirect end date: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: redirect %s is no longer live", ErrConflict, id)
		}
		return fmt.Errorf("%w: scheduled redirect %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScheduledRedirect(row rowScanner) (*db.ScheduledRedirect, error) {
	var rec db.ScheduledRedirect
	var endDate sql.NullTime
	var status string

	err := row.Scan(&rec.ID, &rec.SourceUserID, &rec.DestinationUserID, &rec.SectorCode,
		&rec.StartDate, &endDate, &status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = db.RedirectStatus(status)
	if endDate.Valid {
		t := endDate.Time
		rec.EndDate = &t
	}
	return &rec, nil
}

func collectScheduledRedirects(rows *sql.Rows) ([]db.ScheduledRedirect, error) {
	defer rows.Close()

	var out []db.ScheduledRedirect
	for rows.Next() {
		rec, err := scanScheduledRedirect(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled redirect: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduled redirects: %w", err)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
