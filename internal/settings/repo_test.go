package settings_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"webchat/internal/settings"
)

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "rerank_provider", "rerank_api_key", "gemini_api_key", "search_top_k", "min_score"}).
			AddRow(1, "cohere", "key1", "key2", 8, 0.25)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, rerank_provider, rerank_api_key, gemini_api_key, search_top_k, min_score FROM settings WHERE id = 1")).
			WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.NotNil(t, s)
		assert.Equal(t, "cohere", s.RerankProvider)
		assert.Equal(t, 8, s.SearchTopK)
		assert.Equal(t, 0.25, *s.MinScore)
	})

	t.Run("Null Min Score", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "rerank_provider", "rerank_api_key", "gemini_api_key", "search_top_k", "min_score"}).
			AddRow(1, "none", "", "", 5, nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).WillReturnRows(rows)

		s, err := repo.Get(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, s.MinScore)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id")).
			WillReturnError(sqlmock.ErrCancelled)

		s, err := repo.Get(context.Background())
		assert.Error(t, err)
		assert.Nil(t, s)
	})
}

func TestPostgresRepo_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := settings.NewPostgresRepo(db)

	s := &settings.Settings{
		RerankProvider: "jina",
		RerankAPIKey:   "k1",
		GeminiAPIKey:   "k2",
		SearchTopK:     20,
		MinScore:       settings.Score(0.1),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings (id, rerank_provider, rerank_api_key, gemini_api_key, search_top_k, min_score, updated_at)")).
		WithArgs(s.RerankProvider, s.RerankAPIKey, s.GeminiAPIKey, s.SearchTopK, 0.1).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Update(context.Background(), s)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
