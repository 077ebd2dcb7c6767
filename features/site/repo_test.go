package site

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "url", "collection_name", "title", "num_chunks", "token_count", "status", "error", "last_ingested_at", "created_at", "updated_at"}

func TestPostgresRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO sites (url, collection_name, title, num_chunks, token_count, status, error, last_ingested_at)`)).
		WithArgs("https://example.com", "webchat_example_com_abc", "", 0, 0, StatusQueued, "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("site-1", now, now))

	s := &Site{URL: "https://example.com", CollectionName: "webchat_example_com_abc", Status: StatusQueued}
	require.NoError(t, NewPostgresRepo(db).Upsert(context.Background(), s))
	assert.Equal(t, "site-1", s.ID)
	assert.Equal(t, now, s.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_GetAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sites WHERE id = $1 AND deleted_at IS NULL`)).
		WithArgs("site-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("site-1", "https://example.com", "c", "Example", 3, 120, StatusCompleted, "", now, now, now))

	s, err := repo.Get(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.NumChunks)
	require.NotNil(t, s.LastIngestedAt)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sites WHERE url = $1 AND deleted_at IS NULL`)).
		WithArgs("https://missing.example").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByURL(context.Background(), "https://missing.example")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sites WHERE deleted_at IS NULL ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("a", "https://a.example", "ca", "", 0, 0, StatusQueued, "", nil, now, now).
			AddRow("b", "https://b.example", "cb", "B", 2, 10, StatusFailed, "boom", now, now, now))

	sites, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Nil(t, sites[0].LastIngestedAt)
	assert.Equal(t, "boom", sites[1].Error)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SoftDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sites SET deleted_at = NOW()`)).
		WithArgs("site-1").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SoftDelete(context.Background(), "site-1"))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sites SET deleted_at = NOW()`)).
		WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SoftDelete(context.Background(), "gone"), sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateStatusAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sites SET status = $1, error = $2`)).
		WithArgs(StatusFailed, "scrape failed", "site-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.UpdateStatus(context.Background(), "site-1", StatusFailed, "scrape failed"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM sites WHERE deleted_at IS NULL`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
