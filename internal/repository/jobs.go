package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

// JobRepository persists audit job snapshots. Get returns common.ErrNotFound for unknown ids.
type JobRepository interface {
	Create(ctx context.Context, job entity.Job) error
	Save(ctx context.Context, job entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (entity.Job, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

const jobTable = "audit_job"

var jobColumns = []string{
	"id", "status", "progress", "message", "result",
	"error_code", "error_message", "created_at", "updated_at", "finished_at",
}

// builder picks the placeholder style of the open dialect.
func (r *jobRepo) builder() squirrel.StatementBuilderType {
	if r.db.Dialect == DialectPostgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

func (r *jobRepo) Create(ctx context.Context, job entity.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	query, args, err := r.builder().
		Insert(jobTable).
		Columns(jobColumns...).
		Values(job.ID.String(), string(job.Status), job.Progress, job.Message, result,
			job.ErrorCode, job.ErrorMessage, job.CreatedAt.UTC(), job.UpdatedAt.UTC(), nullTime(job.FinishedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("create job: build query: %w", err)
	}
	if _, err = r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("audit_job create failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("create job: %w", err)
	}
	r.log.Debug("audit_job created", "job_id", job.ID)
	return nil
}

func (r *jobRepo) Save(ctx context.Context, job entity.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	query, args, err := r.builder().
		Update(jobTable).
		Set("status", string(job.Status)).
		Set("progress", job.Progress).
		Set("message", job.Message).
		Set("result", result).
		Set("error_code", job.ErrorCode).
		Set("error_message", job.ErrorMessage).
		Set("updated_at", job.UpdatedAt.UTC()).
		Set("finished_at", nullTime(job.FinishedAt)).
		Where(squirrel.Eq{"id": job.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("save job: build query: %w", err)
	}
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("audit_job save failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("save job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save job %s: %w", job.ID, common.ErrNotFound)
	}
	return nil
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	query, args, err := r.builder().
		Select(jobColumns...).
		From(jobTable).
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return entity.Job{}, fmt.Errorf("get job: build query: %w", err)
	}
	row := r.db.SQL.QueryRowContext(ctx, query, args...)

	var (
		job      entity.Job
		rawID    string
		status   string
		result   sql.NullString
		finished sql.NullTime
	)
	err = row.Scan(&rawID, &status, &job.Progress, &job.Message, &result,
		&job.ErrorCode, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Job{}, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return entity.Job{}, fmt.Errorf("get job: %w", err)
	}

	if job.ID, err = uuid.Parse(rawID); err != nil {
		return entity.Job{}, fmt.Errorf("get job: bad id %q: %w", rawID, err)
	}
	job.Status = constants.JobStatus(status)
	if !job.Status.Valid() {
		return entity.Job{}, fmt.Errorf("get job %s: unknown status %q", id, status)
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	if result.Valid && result.String != "" {
		var ar entity.AuditResult
		if err := json.Unmarshal([]byte(result.String), &ar); err != nil {
			return entity.Job{}, fmt.Errorf("get job: decode result: %w", err)
		}
		job.Result = &ar
	}
	return job, nil
}

func encodeResult(r *entity.AuditResult) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode result: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
