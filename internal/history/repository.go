// Package history persists completed takes to Postgres.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mBelstad/preke-r58-recorder-sub015/internal/models"
)

// Repository handles take persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a take history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a completed take.
func (r *Repository) Create(ctx context.Context, t *models.Take) error {
	files, err := json.Marshal(t.Files)
	if err != nil {
		return err
	}
	const q = `INSERT INTO takes (id, session_id, name, started_at, stopped_at, duration_ms, files, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	return r.pool.QueryRow(ctx, q,
		t.ID, t.SessionID, t.Name, t.StartedAt, t.StoppedAt, t.Duration.Milliseconds(), files, t.Status,
	).Scan(&t.CreatedAt)
}

// GetByID returns a take by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Take, error) {
	const q = `SELECT id, session_id, name, started_at, stopped_at, duration_ms, files, status, s3_keys, created_at
		FROM takes WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

// List returns the most recent takes, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Take, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, session_id, name, started_at, stopped_at, duration_ms, files, status, s3_keys, created_at
		FROM takes ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Take
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// UpdateStatus sets the take archive status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE takes SET status = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// SetArchivedFile records the S3 key for one input's file; the take
// flips to archived once every file has a key.
func (r *Repository) SetArchivedFile(ctx context.Context, id uuid.UUID, inputID, s3Key string) error {
	const q = `UPDATE takes SET
		s3_keys = s3_keys || jsonb_build_object($1::text, $2::text),
		status = CASE
			WHEN (SELECT count(*) FROM jsonb_object_keys(s3_keys || jsonb_build_object($1::text, $2::text))) >=
			     (SELECT count(*) FROM jsonb_object_keys(files))
			THEN $3 ELSE status END
		WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, inputID, s3Key, models.TakeStatusArchived, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOne(row rowScanner) (*models.Take, error) {
	var (
		t          models.Take
		durationMS int64
		files      []byte
		s3Keys     []byte
	)
	if err := row.Scan(&t.ID, &t.SessionID, &t.Name, &t.StartedAt, &t.StoppedAt, &durationMS, &files, &t.Status, &s3Keys, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal(files, &t.Files); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(s3Keys, &t.S3Keys); err != nil {
		return nil, err
	}
	return &t, nil
}
