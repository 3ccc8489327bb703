package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: ":memory:"}, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(quiet) })
	return db
}

func newJob() entity.Job {
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return entity.Job{
		ID:        uuid.New(),
		Status:    constants.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func repositories(t *testing.T) map[string]JobRepository {
	return map[string]JobRepository{
		"sqlite": NewJobRepository(openTestDB(t), quiet),
		"memory": NewMemoryJobRepository(),
	}
}

func TestJobRepository_Lifecycle(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob()
			require.NoError(t, repo.Create(ctx, job))

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, job.ID, got.ID)
			assert.Equal(t, constants.JobStatusPending, got.Status)
			assert.Nil(t, got.Result)
			assert.Nil(t, got.FinishedAt)
			assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

			finished := job.CreatedAt.Add(time.Minute)
			job.Status = constants.JobStatusSucceeded
			job.Progress = 100
			job.Message = "done"
			job.UpdatedAt = finished
			job.FinishedAt = &finished
			job.Result = &entity.AuditResult{
				Data: entity.AggregateTable{"X": {constants.A1: {constants.Listening: 5, constants.Reading: 7,
					constants.Writing: 0, constants.Speaking: 0}}},
				ReportArtifact: job.ID.String() + ".xlsx",
			}
			require.NoError(t, repo.Save(ctx, job))

			got, err = repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, constants.JobStatusSucceeded, got.Status)
			assert.Equal(t, 100, got.Progress)
			assert.Equal(t, "done", got.Message)
			require.NotNil(t, got.FinishedAt)
			assert.True(t, finished.Equal(*got.FinishedAt))
			require.NotNil(t, got.Result)
			assert.Equal(t, job.Result.ReportArtifact, got.Result.ReportArtifact)
			assert.Equal(t, 7, got.Result.Data["X"][constants.A1][constants.Reading])
		})
	}
}

func TestJobRepository_Failed(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob()
			require.NoError(t, repo.Create(ctx, job))

			job.Status = constants.JobStatusFailed
			job.ErrorCode = common.CodeAuthentication
			job.ErrorMessage = "authentication failed"
			require.NoError(t, repo.Save(ctx, job))

			got, err := repo.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, common.CodeAuthentication, got.ErrorCode)
			assert.Equal(t, "authentication failed", got.ErrorMessage)
		})
	}
}

func TestJobRepository_NotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Get(ctx, uuid.New())
			assert.True(t, errors.Is(err, common.ErrNotFound))

			err = repo.Save(ctx, newJob())
			assert.True(t, errors.Is(err, common.ErrNotFound))
		})
	}
}

func TestJobRepository_PlaceholderFormat(t *testing.T) {
	id := uuid.New()

	pg := &jobRepo{db: &DB{Dialect: DialectPostgres}, log: quiet}
	query, args, err := pg.builder().Select("id").From(jobTable).
		Where(squirrel.Eq{"id": id.String(), "status": "PENDING"}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM audit_job WHERE id = $1 AND status = $2", query)
	assert.Equal(t, []any{id.String(), "PENDING"}, args)

	lite := &jobRepo{db: &DB{Dialect: DialectSQLite}, log: quiet}
	query, _, err = lite.builder().Update(jobTable).Set("progress", 5).
		Where(squirrel.Eq{"id": id.String()}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE audit_job SET progress = ? WHERE id = ?", query)
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, isPostgres("postgres://u:p@localhost/db"))
	assert.True(t, isPostgres("postgresql://localhost/db"))
	assert.False(t, isPostgres("./jobs.db"))
	assert.False(t, isPostgres(":memory:"))
}
