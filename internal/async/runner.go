package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/core"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/progress"
	"github.com/joseph-ayodele/skills-audit/internal/repository"
)

// Pipeline is the audit the runner executes.
type Pipeline interface {
	Run(ctx context.Context, req core.Request, sink progress.Sink) (*entity.AuditResult, error)
}

type active struct {
	tracker *Tracker
	cancel  context.CancelFunc // set while running
}

// Runner executes audit jobs on a fixed worker pool.
type Runner struct {
	pipeline Pipeline
	repo     repository.JobRepository
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	interval time.Duration
	minDelta int
	now      func() time.Time

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// base is cancelled when a shutdown deadline passes
	base context.Context
	stop context.CancelFunc

	mu     sync.RWMutex
	closed bool

	// closing wakes submitters blocked on a full queue so Shutdown can take mu
	closing     chan struct{}
	closingOnce sync.Once

	jobsMu sync.Mutex
	jobs   map[uuid.UUID]*active
}

type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithProgressThrottle limits how often progress is persisted.
func WithProgressThrottle(interval time.Duration, minDelta int) Option {
	return func(r *Runner) {
		r.interval = interval
		r.minDelta = minDelta
	}
}

func NewRunner(pipeline Pipeline, repo repository.JobRepository, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	r := &Runner{
		pipeline: pipeline,
		repo:     repo,
		logger:   logger,
		workers:  2,
		timeout:  2 * time.Hour,
		interval: time.Second,
		minDelta: 5,
		now:      time.Now,
		ch:       make(chan Job, 32),
		base:     base,
		stop:     stop,
		closing:  make(chan struct{}),
		jobs:     make(map[uuid.UUID]*active),
	}
	for _, o := range opts {
		o(r)
	}
	r.start()
	return r
}

func (r *Runner) start() {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Info("worker started", "worker_id", workerID)
				for job := range r.ch {
					r.process(workerID, job)
				}
				r.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Submit records a pending job and queues it. When the queue is full Submit blocks until
// a slot frees up, ctx is done or the runner starts shutting down.
func (r *Runner) Submit(ctx context.Context, req Request) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return uuid.Nil, common.NewAppError(common.CodeConflict, "runner is shutting down", common.ErrConflict)
	}

	now := r.now()
	job := entity.Job{
		ID:        uuid.New(),
		Status:    constants.JobStatusPending,
		Message:   "Sırada",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("submit: %w", err)
	}
	t := newTracker(job, r.repo, r.logger, r.now)

	r.jobsMu.Lock()
	r.jobs[job.ID] = &active{tracker: t}
	r.jobsMu.Unlock()

	qj := Job{ID: job.ID, Request: req, SubmittedAt: now}
	select {
	case r.ch <- qj:
	default:
		r.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
		select {
		case r.ch <- qj:
		case <-ctx.Done():
			_ = t.Fail(common.CodeCancelled, "submission abandoned while the queue was full")
			r.forget(job.ID)
			return uuid.Nil, ctx.Err()
		case <-r.closing:
			_ = t.Fail(common.CodeCancelled, "service shut down while the queue was full")
			r.forget(job.ID)
			return uuid.Nil, common.NewAppError(common.CodeConflict, "runner is shutting down", common.ErrConflict)
		}
	}
	r.logger.Info("queued audit job", "job_id", job.ID, "languages", req.Languages)
	return job.ID, nil
}

// Status returns the live snapshot for queued or running jobs, the stored one otherwise.
func (r *Runner) Status(ctx context.Context, id uuid.UUID) (entity.Job, error) {
	r.jobsMu.Lock()
	a, ok := r.jobs[id]
	r.jobsMu.Unlock()
	if ok {
		return a.tracker.Snapshot(), nil
	}
	return r.repo.Get(ctx, id)
}

// Cancel fails a queued job immediately; a running job stops before its next work item.
func (r *Runner) Cancel(id uuid.UUID) error {
	r.jobsMu.Lock()
	a, ok := r.jobs[id]
	var cancel context.CancelFunc
	if ok {
		cancel = a.cancel
	}
	r.jobsMu.Unlock()

	if !ok {
		return common.NewAppError(common.CodeConflict, "job is not queued or running", common.ErrConflict)
	}
	if cancel != nil {
		r.logger.Info("cancelling running job", "job_id", id)
		cancel()
		return nil
	}
	if err := a.tracker.Fail(common.CodeCancelled, "audit cancelled before it started"); err != nil {
		return err
	}
	r.logger.Info("cancelled queued job", "job_id", id)
	return nil
}

func (r *Runner) process(workerID int, job Job) {
	defer r.forget(job.ID)

	r.jobsMu.Lock()
	a, ok := r.jobs[job.ID]
	r.jobsMu.Unlock()
	if !ok {
		return
	}
	t := a.tracker

	if err := r.base.Err(); err != nil {
		_ = t.Fail(common.CodeCancelled, "service shut down before the audit started")
		return
	}

	ctx, cancel := context.WithTimeout(r.base, r.timeout)
	defer cancel()
	r.jobsMu.Lock()
	a.cancel = cancel
	r.jobsMu.Unlock()

	if err := t.Start(); err != nil {
		// cancelled while queued
		r.logger.Info("skipping job", "worker_id", workerID, "job_id", job.ID, "reason", err)
		return
	}

	ctx = common.WithLogger(ctx, r.logger.With("worker_id", workerID))
	sink := progress.NewThrottled(t, r.interval, r.minDelta)
	start := r.now()

	res, err := r.runSafely(ctx, core.Request{
		JobID:       job.ID.String(),
		Credentials: job.Request.Credentials,
		Thresholds:  job.Request.Thresholds,
		Languages:   job.Request.Languages,
	}, sink)
	if err != nil {
		code := common.ErrorCode(err)
		if errors.Is(err, context.Canceled) && r.base.Err() == nil {
			code = common.CodeCancelled
		}
		_ = t.Fail(code, err.Error())
		r.logger.Error("processing failed", "worker_id", workerID, "job_id", job.ID, "code", code, "error", err)
		return
	}
	_ = t.Succeed(res)
	r.logger.Info("processed audit successfully",
		"worker_id", workerID,
		"job_id", job.ID,
		"artifact", res.ReportArtifact,
		"elapsed_ms", r.now().Sub(start).Milliseconds(),
	)
}

func (r *Runner) runSafely(ctx context.Context, req core.Request, sink progress.Sink) (res *entity.AuditResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, common.NewAppError(common.CodeInternal, fmt.Sprintf("audit crashed: %v", p), nil)
		}
	}()
	res, err = r.pipeline.Run(ctx, req, sink)
	if err == nil && res == nil {
		err = common.NewAppError(common.CodeInternal, "audit returned no result", nil)
	}
	return res, err
}

func (r *Runner) forget(id uuid.UUID) {
	r.jobsMu.Lock()
	delete(r.jobs, id)
	r.jobsMu.Unlock()
}

// Shutdown stops accepting jobs and waits for queued and running ones. When ctx ends
// first, running audits are cancelled and the rest of the queue fails fast.
func (r *Runner) Shutdown(ctx context.Context) {
	r.closingOnce.Do(func() { close(r.closing) })
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-ctx.Done():
		r.logger.Warn("shutdown interrupted by context, cancelling running audits")
		r.stop()
		<-done
	case <-done:
		r.logger.Info("queue drained, shutdown complete")
	}
	r.stop()
}
