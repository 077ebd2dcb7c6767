package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, rerank_provider, rerank_api_key, gemini_api_key, search_top_k, min_score FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.RerankProvider, &s.RerankAPIKey, &s.GeminiAPIKey, &s.SearchTopK, &s.MinScore)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO settings (id, rerank_provider, rerank_api_key, gemini_api_key, search_top_k, min_score, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET rerank_provider = EXCLUDED.rerank_provider, rerank_api_key = EXCLUDED.rerank_api_key,
			gemini_api_key = EXCLUDED.gemini_api_key, search_top_k = EXCLUDED.search_top_k,
			min_score = EXCLUDED.min_score, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, s.RerankProvider, s.RerankAPIKey, s.GeminiAPIKey, s.SearchTopK, s.MinScore)
	return err
}
