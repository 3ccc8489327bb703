package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/repository"
)

const persistTimeout = 5 * time.Second

// Tracker owns the state of one job: PENDING -> RUNNING -> SUCCEEDED | FAILED.
// Progress only moves forward and stays below 100 until the job succeeds. Terminal
// states are final. Every accepted change is written to the repository.
type Tracker struct {
	repo   repository.JobRepository
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	job entity.Job
}

func newTracker(job entity.Job, repo repository.JobRepository, logger *slog.Logger, now func() time.Time) *Tracker {
	return &Tracker{repo: repo, logger: logger.With("job_id", job.ID), now: now, job: job}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() entity.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// Start moves a pending job to running.
func (t *Tracker) Start() error {
	return t.transition(func(j *entity.Job) error {
		if j.Status != constants.JobStatusPending {
			return invalidTransition(j.Status, constants.JobStatusRunning)
		}
		j.Status = constants.JobStatusRunning
		j.Message = "Başlatılıyor"
		return nil
	})
}

// Report implements progress.Sink. Updates outside RUNNING, or that would move
// progress backwards, are ignored.
func (t *Tracker) Report(percent int, message string) {
	err := t.transition(func(j *entity.Job) error {
		if j.Status != constants.JobStatusRunning {
			return invalidTransition(j.Status, constants.JobStatusRunning)
		}
		percent = min(max(percent, 0), 99)
		if percent < j.Progress {
			return fmt.Errorf("progress %d behind %d: %w", percent, j.Progress, common.ErrConflict)
		}
		j.Progress = percent
		j.Message = message
		return nil
	})
	if err != nil {
		t.logger.Debug("tracker.progress.ignored", "percent", percent, "error", err)
	}
}

// Succeed marks the job done with its result.
func (t *Tracker) Succeed(result *entity.AuditResult) error {
	return t.transition(func(j *entity.Job) error {
		if j.Status != constants.JobStatusRunning {
			return invalidTransition(j.Status, constants.JobStatusSucceeded)
		}
		j.Status = constants.JobStatusSucceeded
		j.Progress = 100
		j.Message = "Tamamlandı"
		j.Result = result
		return nil
	})
}

// Fail marks the job failed. Progress stays where it was.
func (t *Tracker) Fail(code, message string) error {
	return t.transition(func(j *entity.Job) error {
		if j.Status.Terminal() {
			return invalidTransition(j.Status, constants.JobStatusFailed)
		}
		j.Status = constants.JobStatusFailed
		j.Message = message
		j.ErrorCode = code
		j.ErrorMessage = message
		return nil
	})
}

func (t *Tracker) transition(apply func(j *entity.Job) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.job
	if err := apply(&next); err != nil {
		return err
	}
	now := t.now()
	next.UpdatedAt = now
	if next.Status.Terminal() {
		next.FinishedAt = &now
	}
	t.job = next

	// saved under the lock so writes land in transition order; the in-memory
	// snapshot stays authoritative for polling even if the write fails
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := t.repo.Save(ctx, next); err != nil {
		t.logger.Error("tracker.persist.failed", "status", next.Status, "error", err)
	}
	return nil
}

func invalidTransition(from, to constants.JobStatus) error {
	return common.NewAppError(common.CodeConflict, fmt.Sprintf("job is %s, cannot move to %s", from, to), common.ErrConflict)
}
