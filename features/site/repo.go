package site

import (
	"context"
	"database/sql"
)

const siteColumns = `id, url, collection_name, title, num_chunks, token_count, status, error, last_ingested_at, created_at, updated_at`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Upsert(ctx context.Context, s *Site) error {
	query := `INSERT INTO sites (url, collection_name, title, num_chunks, token_count, status, error, last_ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url) DO UPDATE SET
			collection_name = EXCLUDED.collection_name,
			title = EXCLUDED.title,
			num_chunks = EXCLUDED.num_chunks,
			token_count = EXCLUDED.token_count,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			last_ingested_at = COALESCE(EXCLUDED.last_ingested_at, sites.last_ingested_at),
			deleted_at = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		s.URL, s.CollectionName, s.Title, s.NumChunks, s.TokenCount, s.Status, s.Error, s.LastIngestedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1 AND deleted_at IS NULL`
	return scanSite(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) GetByURL(ctx context.Context, url string) (*Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE url = $1 AND deleted_at IS NULL`
	return scanSite(r.db.QueryRowContext(ctx, query, url))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *s)
	}
	return sites, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	query := `UPDATE sites SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, errMsg, id)
	return err
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sites SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE deleted_at IS NULL`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSite(row scanner) (*Site, error) {
	s := &Site{}
	var lastIngested sql.NullTime
	err := row.Scan(&s.ID, &s.URL, &s.CollectionName, &s.Title, &s.NumChunks, &s.TokenCount,
		&s.Status, &s.Error, &lastIngested, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastIngested.Valid {
		t := lastIngested.Time
		s.LastIngestedAt = &t
	}
	return s, nil
}
