package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// JobRepository defines the interface for job history access
type JobRepository interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, rec domain.JobRecord) error
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresJobRepository implements JobRepository for PostgreSQL
type PostgresJobRepository struct {
	db *sql.DB
}

// NewPostgresJobRepository creates a new PostgreSQL job repository
func NewPostgresJobRepository(db *sql.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

// EnsureSchema creates the job history table if it does not exist
func (r *PostgresJobRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS job_history (
			id          TEXT PRIMARY KEY,
			action      TEXT NOT NULL,
			status      TEXT NOT NULL,
			error_type  TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		)
	`

	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Save stores a finished job. Re-running a job id overwrites the previous record.
func (r *PostgresJobRepository) Save(ctx context.Context, rec domain.JobRecord) error {
	query := `
		INSERT INTO job_history (id, action, status, error_type, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET action = EXCLUDED.action,
			status = EXCLUDED.status,
			error_type = EXCLUDED.error_type,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			created_at = EXCLUDED.created_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Action, rec.Status, rec.ErrorType, rec.Error, rec.DurationMS, time.Now())
	return err
}

// Get retrieves a job record by id. It returns nil, nil when the job is unknown.
func (r *PostgresJobRepository) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	query := `
		SELECT id, action, status, error_type, error, duration_ms
		FROM job_history
		WHERE id = $1
	`

	var rec domain.JobRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Action,
		&rec.Status,
		&rec.ErrorType,
		&rec.Error,
		&rec.DurationMS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// DeleteOlderThan removes records created before cutoff and returns how many were removed
func (r *PostgresJobRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM job_history
		WHERE created_at < $1
	`

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
