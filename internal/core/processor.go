package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/core/aggregate"
	"github.com/joseph-ayodele/skills-audit/internal/core/classify"
	"github.com/joseph-ayodele/skills-audit/internal/core/counter"
	"github.com/joseph-ayodele/skills-audit/internal/core/policy"
	"github.com/joseph-ayodele/skills-audit/internal/core/report"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/fetch"
	"github.com/joseph-ayodele/skills-audit/internal/progress"
)

// Progress checkpoints. Work items spread linearly between progressItemsStart and
// progressItemsEnd; 100 is reserved for the runner marking the job succeeded.
const (
	progressAuth        = 10
	progressLoggedIn    = 15
	progressDiscovery   = 20
	progressFiltered    = 30
	progressItemsStart  = 40
	progressItemsEnd    = 90
	progressAggregating = 92
	progressReport      = 95
	progressCeiling     = 99
)

const releaseTimeout = 15 * time.Second

// ReportWriter materialises a payload and returns the artifact identifier.
type ReportWriter interface {
	Write(ctx context.Context, p report.Payload) (string, error)
}

// Request is one audit run.
type Request struct {
	JobID       string
	Credentials entity.Credentials
	Thresholds  aggregate.Thresholds
	Languages   []string
}

// Processor runs the audit: authenticate, discover, filter, count, aggregate, report.
type Processor struct {
	logger     *slog.Logger
	fetcher    fetch.Fetcher
	writer     ReportWriter
	policy     policy.LevelPolicy
	classifier *classify.Classifier
	namer      report.Namer
	now        func() time.Time

	concurrency       int
	sessionTimeout    time.Duration
	navigationTimeout time.Duration
	batchTimeout      time.Duration
}

type Option func(*Processor)

func WithPolicy(p policy.LevelPolicy) Option {
	return func(pr *Processor) { pr.policy = p }
}

func WithClassifier(c *classify.Classifier) Option {
	return func(pr *Processor) {
		if c != nil {
			pr.classifier = c
		}
	}
}

func WithNamer(n report.Namer) Option {
	return func(pr *Processor) {
		if n != nil {
			pr.namer = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(pr *Processor) {
		if n > 0 {
			pr.concurrency = n
		}
	}
}

// WithTimeouts sets the per-operation bounds; zero leaves a bound unchanged.
func WithTimeouts(session, navigation, batch time.Duration) Option {
	return func(pr *Processor) {
		if session > 0 {
			pr.sessionTimeout = session
		}
		if navigation > 0 {
			pr.navigationTimeout = navigation
		}
		if batch > 0 {
			pr.batchTimeout = batch
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(pr *Processor) { pr.now = now }
}

func NewProcessor(logger *slog.Logger, fetcher fetch.Fetcher, writer ReportWriter, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:            logger,
		fetcher:           fetcher,
		writer:            writer,
		policy:            policy.DefaultPolicy(),
		classifier:        classify.New(nil),
		namer:             report.ByJobID,
		now:               time.Now,
		concurrency:       6,
		sessionTimeout:    60 * time.Second,
		navigationTimeout: 60 * time.Second,
		batchTimeout:      180 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes one audit. Progress goes to sink; the returned error is an *common.AppError
// carrying the failure code. The session is released exactly once on every path.
// Cancellation of ctx is honoured between work items.
func (p *Processor) Run(ctx context.Context, req Request, sink progress.Sink) (*entity.AuditResult, error) {
	if sink == nil {
		sink = progress.Nop
	}
	ctx = common.WithJobID(ctx, req.JobID)
	logger := common.LoggerFromContext(ctx, p.logger).With("job_id", req.JobID)
	start := p.now()

	var session fetch.Session
	release := sync.OnceFunc(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := p.fetcher.Release(rctx, session); err != nil {
			logger.Warn("pipeline.session.release_failed", "error", err)
			return
		}
		logger.Debug("pipeline.session.released")
	})
	defer release()

	// 1) session
	sink.Report(progressAuth, "Oturum başlatılıyor")
	logger.Info("pipeline.auth.start", "credentials", req.Credentials)
	s, err := p.authenticate(ctx, req.Credentials)
	if err != nil {
		logger.Error("pipeline.auth.failed", "error", err)
		return nil, err
	}
	session = s
	sink.Report(progressLoggedIn, "Giriş başarılı")

	// 2) taxonomy
	sink.Report(progressDiscovery, "Dil ve seviye listesi alınıyor")
	tax, err := p.discover(ctx, session)
	if err != nil {
		logger.Error("pipeline.discovery.failed", "error", err)
		return nil, err
	}
	logger.Info("pipeline.discovery.ok", "languages", len(tax), "entries", len(tax.Entries()))

	// 3) language selection, 4) level policy
	selected, err := policy.SelectLanguages(tax, req.Languages)
	if err != nil {
		logger.Error("pipeline.select.failed", "requested", req.Languages, "available", tax.Languages(), "error", err)
		return nil, err
	}
	items, err := policy.Filter(selected, p.policy, logger)
	if err != nil {
		logger.Error("pipeline.filter.failed", "error", err)
		return nil, err
	}
	sink.Report(progressFiltered, fmt.Sprintf("%d seviye taranacak", len(items)))

	// 5) crawl, one work item at a time
	collected, err := p.crawl(ctx, session, items, sink, logger)
	if err != nil {
		return nil, err
	}

	// 6) aggregate
	sink.Report(progressAggregating, "Veriler birleştiriliyor")
	res := aggregate.Aggregate(collected, p.classifier, logger)

	// 7) the session is not needed past this point
	release()

	// 8) report
	sink.Report(progressReport, "Rapor oluşturuluyor")
	payload := report.Build(p.namer(req.JobID, p.now()), res.Table, res.Languages, req.Thresholds)
	artifact, err := p.writer.Write(ctx, payload)
	if err != nil {
		logger.Error("pipeline.report.failed", "error", err)
		return nil, common.JobError(common.ErrReportWrite, "report could not be written", err)
	}

	logger.Info("pipeline.done",
		"artifact", artifact,
		"work_items", len(items),
		"unclassified", len(res.Misses),
		"highlighted", payload.HighlightCount(),
		"elapsed_ms", p.now().Sub(start).Milliseconds(),
	)
	return &entity.AuditResult{Data: res.Table, ReportArtifact: artifact}, nil
}

func (p *Processor) authenticate(ctx context.Context, creds entity.Credentials) (fetch.Session, error) {
	actx, cancel := context.WithTimeout(ctx, p.sessionTimeout)
	defer cancel()

	s, err := p.fetcher.Authenticate(actx, creds)
	if err == nil && s == nil {
		err = fetch.NewError(fetch.KindSessionUnavailable, fetch.OpSessionAcquisition, "", errors.New("no session returned"))
	}
	if err == nil {
		return s, nil
	}

	var msg string
	switch fetch.KindOf(err) {
	case fetch.KindBadCredentials:
		msg = "authentication failed: the platform rejected the username or password"
	case fetch.KindSessionUnavailable:
		msg = "authentication failed: no browser session could be acquired"
	case fetch.KindTimeout:
		msg = "authentication failed: session acquisition timed out"
	default:
		msg = "authentication failed"
	}
	return nil, common.JobError(common.ErrAuthentication, msg, err)
}

func (p *Processor) discover(ctx context.Context, s fetch.Session) (entity.Taxonomy, error) {
	dctx, cancel := context.WithTimeout(ctx, p.navigationTimeout)
	defer cancel()

	tax, err := p.fetcher.DiscoverTaxonomy(dctx, s)
	if err != nil {
		msg := "taxonomy discovery failed"
		if fetch.KindOf(err) == fetch.KindTimeout {
			msg = "taxonomy discovery timed out"
		}
		return nil, common.JobError(common.ErrDiscovery, msg, err)
	}
	if tax.Empty() {
		return nil, common.JobError(common.ErrDiscovery, "the platform returned no languages or levels", nil)
	}
	return tax, nil
}

func (p *Processor) crawl(ctx context.Context, s fetch.Session, items []entity.WorkItem, sink progress.Sink, logger *slog.Logger) ([]entity.WorkItemCourses, error) {
	cnt := counter.New(p.fetcher, logger,
		counter.WithConcurrency(p.concurrency),
		counter.WithBatchTimeout(p.batchTimeout),
	)

	out := make([]entity.WorkItemCourses, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			msg := "audit cancelled"
			if errors.Is(err, context.DeadlineExceeded) {
				msg = "audit exceeded its time limit"
			}
			logger.Warn("pipeline.crawl.cancelled", "done", i, "total", len(items), "error", err)
			return nil, common.JobError(common.ErrCancelled, msg, err)
		}

		label := it.Language + " " + string(it.Level)
		sink.Report(itemProgress(i, len(items)), label+" taranıyor")
		ilog := logger.With("language", it.Language, "level", it.Level)

		refs, err := p.listCourses(ctx, s, it.LevelURL)
		if err != nil {
			ilog.Error("pipeline.courses.failed", "url", it.LevelURL, "error", err)
			return nil, err
		}
		if len(refs) == 0 {
			ilog.Warn("pipeline.courses.empty", "url", it.LevelURL)
			out = append(out, entity.WorkItemCourses{Item: it})
			continue
		}

		records := cnt.Count(ctx, s, refs)
		failed := 0
		for _, r := range records {
			if r.Failed() {
				failed++
			}
		}
		ilog.Info("pipeline.courses.counted", "courses", len(records), "failed", failed)
		out = append(out, entity.WorkItemCourses{Item: it, Courses: records})
	}
	sink.Report(progressItemsEnd, "Tarama tamamlandı")
	return out, nil
}

func (p *Processor) listCourses(ctx context.Context, s fetch.Session, url string) ([]entity.CourseRef, error) {
	nctx, cancel := context.WithTimeout(ctx, p.navigationTimeout)
	defer cancel()

	refs, err := p.fetcher.ListCourseReferences(nctx, s, url)
	if err != nil {
		msg := "course listing failed for " + url
		if fetch.KindOf(err) == fetch.KindTimeout {
			msg = "navigation timed out for " + url
		}
		return nil, common.JobError(common.ErrNavigation, msg, err)
	}
	return refs, nil
}

// itemProgress places item i of n between progressItemsStart and progressItemsEnd.
func itemProgress(i, n int) int {
	if n <= 0 {
		return progressItemsStart
	}
	v := progressItemsStart + (progressItemsEnd-progressItemsStart)*i/n
	return min(v, progressCeiling)
}
