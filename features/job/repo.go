package job

import (
	"context"
	"database/sql"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

const selectJob = `SELECT id, COALESCE(site_id::text, ''), COALESCE(payload->>'url', ''), handler, payload::text, error, retries, created_at FROM failed_jobs`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save stores a failed job. An empty SiteID is stored as NULL.
func (r *PostgresRepo) Save(ctx context.Context, j *Job) error {
	const q = `INSERT INTO failed_jobs (site_id, handler, payload, error)
		VALUES (NULLIF($1, '')::uuid, $2, $3::jsonb, $4)
		RETURNING id, COALESCE(payload->>'url', ''), retries, created_at`
	// lib/pq sends []byte as bytea, so the payload travels as text.
	return r.db.QueryRowContext(ctx, q, j.SiteID, j.Handler, string(j.Payload), j.Error).
		Scan(&j.ID, &j.URL, &j.Retries, &j.CreatedAt)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, selectJob+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// Get returns sql.ErrNoRows for an unknown id.
func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	return scanJob(r.db.QueryRowContext(ctx, selectJob+` WHERE id = $1`, id))
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j       Job
		payload string
	)
	if err := row.Scan(&j.ID, &j.SiteID, &j.URL, &j.Handler, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
		return nil, err
	}
	j.Payload = []byte(payload)
	return &j, nil
}
