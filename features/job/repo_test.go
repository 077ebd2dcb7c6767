package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobCols = []string{"id", "site_id", "url", "handler", "payload", "error", "retries", "created_at"}

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO failed_jobs (site_id, handler, payload, error)`)).
		WithArgs("site-1", HandlerIngestSite, `{"url":"https://example.com"}`, "boom").
		WillReturnRows(sqlmock.NewRows([]string{"id", "url", "retries", "created_at"}).
			AddRow("job-1", "https://example.com", 0, now))

	j := &Job{SiteID: "site-1", Handler: HandlerIngestSite, Payload: json.RawMessage(`{"url":"https://example.com"}`), Error: "boom"}
	require.NoError(t, NewPostgresRepo(db).Save(context.Background(), j))
	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, "https://example.com", j.URL)
	assert.Equal(t, now, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM failed_jobs ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("j2", "s1", "https://b.example", HandlerIngestSite, `{"url":"https://b.example"}`, "e2", 0, now).
			AddRow("j1", "", "https://a.example", HandlerIngestSite, `{"url":"https://a.example"}`, "e1", 1, now.Add(-time.Minute)))

	jobs, err := NewPostgresRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j2", jobs[0].ID)
	assert.Equal(t, "https://a.example", jobs[1].URL)
	assert.JSONEq(t, `{"url":"https://a.example"}`, string(jobs[1].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM failed_jobs`).WillReturnRows(sqlmock.NewRows(jobCols))

	jobs, err := NewPostgresRepo(db).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestPostgresRepo_GetDeleteCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM failed_jobs WHERE id = $1`)).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows(jobCols).AddRow("j1", "", "", HandlerIngestSite, `{}`, "e1", 1, time.Now()))
	j, err := repo.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 1, j.Retries)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM failed_jobs WHERE id = $1`)).
		WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM failed_jobs WHERE id = $1`)).
		WithArgs("j1").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(ctx, "j1"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM failed_jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
