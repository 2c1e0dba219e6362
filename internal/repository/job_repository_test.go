package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/stylemesh/internal/domain"
)

func newMock(t *testing.T) (*PostgresJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresJobRepository(db), mock
}

func TestEnsureSchema(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job_history").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("INSERT INTO job_history").
		WithArgs("job-1", "process_image", "ERROR", "validation", "No image data provided", int64(12), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Save(context.Background(), domain.JobRecord{
		ID:         "job-1",
		Action:     "process_image",
		Status:     "ERROR",
		ErrorType:  "validation",
		Error:      "No image data provided",
		DurationMS: 12,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"id", "action", "status", "error_type", "error", "duration_ms"}).
		AddRow("job-2", "health_check", "SUCCESS", "", "", int64(3))
	mock.ExpectQuery("SELECT id, action, status").WithArgs("job-2").WillReturnRows(rows)

	rec, err := repo.Get(context.Background(), "job-2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "health_check", rec.Action)
	assert.Equal(t, int64(3), rec.DurationMS)

	mock.ExpectQuery("SELECT id, action, status").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	rec, err = repo.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteOlderThan(t *testing.T) {
	repo, mock := newMock(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM job_history").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	mock.ExpectExec("DELETE FROM job_history").WithArgs(cutoff).WillReturnError(errors.New("connection reset"))
	_, err = repo.DeleteOlderThan(context.Background(), cutoff)
	assert.Error(t, err)
}

func TestHistoryRecorder(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("INSERT INTO job_history").
		WithArgs("job-3", "generate_3d_model", "SUCCESS", "", "", int64(250), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := NewHistoryRecorder(repo)
	job := domain.Job{ID: "job-3", Input: domain.JobInput{Action: domain.ActionGenerate3DModel}}
	err := rec.ObserveJob(context.Background(), job, domain.Result{Status: domain.StatusSuccess}, 250*time.Millisecond)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
