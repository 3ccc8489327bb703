// Package counter counts resources across many course pages with bounded concurrency.
package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/fetch"
)

const defaultConcurrency = 6

// Counter fans course fetches out in fixed-size batches. Batches run one after another,
// items inside a batch run concurrently.
type Counter struct {
	rc           fetch.ResourceCounter
	logger       *slog.Logger
	concurrency  int
	batchTimeout time.Duration
}

type Option func(*Counter)

func WithConcurrency(n int) Option {
	return func(c *Counter) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchTimeout bounds each batch; zero means the caller's context is the only bound.
func WithBatchTimeout(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

func New(rc fetch.ResourceCounter, logger *slog.Logger, opts ...Option) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Counter{
		rc:          rc,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Count returns exactly one record per reference, in input order. Per-item failures are
// recorded on the item with a zero total and never abort the run.
func (c *Counter) Count(ctx context.Context, s fetch.Session, refs []entity.CourseRef) []entity.CourseRecord {
	records := make([]entity.CourseRecord, len(refs))
	for i, ref := range refs {
		records[i] = entity.CourseRecord{Title: ref.Title, URL: ref.URL}
	}

	for b, span := range partition(len(refs), c.concurrency) {
		start := time.Now()
		c.runBatch(ctx, s, refs, records, span)
		c.logger.Debug("counter.batch.done",
			"batch", b+1,
			"size", span[1]-span[0],
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return records
}

func (c *Counter) runBatch(ctx context.Context, s fetch.Session, refs []entity.CourseRef, records []entity.CourseRecord, span [2]int) {
	bctx := ctx
	if c.batchTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, c.batchTimeout)
		defer cancel()
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := span[0]; i < span[1]; i++ {
		g.Go(func() error {
			// each goroutine owns records[i]
			total, err := c.countOne(bctx, s, refs[i].URL)
			if err != nil {
				records[i].Error = err.Error()
				c.logger.Warn("counter.item.failed",
					"job_id", common.JobIDFromContext(ctx),
					"title", refs[i].Title,
					"url", refs[i].URL,
					"kind", fetch.KindOf(err).String(),
					"error", err,
				)
				return nil
			}
			records[i].ResourceTotal = total
			return nil
		})
	}
	// failures land on records[i]; the goroutines never return an error
	g.Wait()
}

func (c *Counter) countOne(ctx context.Context, s fetch.Session, url string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fetch.NewError(fetch.KindUnknown, fetch.OpCourseFetch, url, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, fetch.NewError(fetch.KindUnknown, fetch.OpBatchFetch, url, err)
	}
	n, err = c.rc.CountResources(ctx, s, url)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fetch.NewError(fetch.KindTimeout, fetch.OpBatchFetch, url, ctx.Err())
		}
		return 0, err
	}
	if n < 0 {
		return 0, fetch.NewError(fetch.KindParse, fetch.OpCourseFetch, url, fmt.Errorf("negative total %d", n))
	}
	return n, nil
}

// partition splits n items into consecutive [start,end) spans of at most size.
func partition(n, size int) [][2]int {
	if size <= 0 {
		size = 1
	}
	spans := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, [2]int{start, min(start+size, n)})
	}
	return spans
}
