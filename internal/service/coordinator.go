package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/listing"
	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/observability/metrics"
	"github.com/target/jobsync/internal/observability/statsd"
)

// PassMarkerKey holds the ID of the pass in progress. It is written at Init and removed once
// the pass reaches Done, so its presence at startup means the previous pass was interrupted.
const PassMarkerKey = "jobsync:pass:current"

const maxFetchBackoff = 30 * time.Second

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	Source     core.Source          // Required: paginated listing source
	Relational core.RelationalStore // Required: bootstrap source of truth
	KV         core.KeyValueStore   // Required: pass marker storage
	Tracker    *LivenessTracker     // Required
	Cache      *SessionCache        // Required
	Writer     *FanoutWriter        // Required

	// WriteConcurrency bounds in-flight fan-out writes. Defaults to 1.
	WriteConcurrency int
	// FetchRetries is how many times a failed page fetch is retried.
	FetchRetries int
	// RetryBackoff is the first retry delay; it doubles per attempt up to 30s.
	RetryBackoff time.Duration
	// MaxDeleteFraction enables the mass-deletion guard when > 0.
	MaxDeleteFraction float64

	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// Coordinator drives reconciliation passes: Init -> Crawling -> Sweeping -> Done.
//
// Tracker and cache calls are made only from the goroutine running the pass; store writes
// fan out to a bounded pool and are all awaited before the sweep. A pass that aborts for
// any reason never sweeps, and leaves the pass marker so the next pass resumes.
type Coordinator struct {
	source     core.Source
	relational core.RelationalStore
	kv         core.KeyValueStore
	tracker    *LivenessTracker
	cache      *SessionCache
	writer     *FanoutWriter

	writeConcurrency  int
	fetchRetries      int
	retryBackoff      time.Duration
	maxDeleteFraction float64

	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
	running atomic.Bool
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("Source is required")
	case opts.Relational == nil:
		return nil, errors.New("RelationalStore is required")
	case opts.KV == nil:
		return nil, errors.New("KeyValueStore is required")
	case opts.Tracker == nil:
		return nil, errors.New("LivenessTracker is required")
	case opts.Cache == nil:
		return nil, errors.New("SessionCache is required")
	case opts.Writer == nil:
		return nil, errors.New("FanoutWriter is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Coordinator{
		source:            opts.Source,
		relational:        opts.Relational,
		kv:                opts.KV,
		tracker:           opts.Tracker,
		cache:             opts.Cache,
		writer:            opts.Writer,
		writeConcurrency:  max(opts.WriteConcurrency, 1),
		fetchRetries:      max(opts.FetchRetries, 0),
		retryBackoff:      backoff,
		maxDeleteFraction: opts.MaxDeleteFraction,
		logger:            logger.With("component", "coordinator"),
		metrics:           opts.Metrics,
		now:               now,
	}, nil
}

// pass carries the mutable state of one run through the phases.
type pass struct {
	report *model.PassReport
	pool   *errgroup.Group
	mu     sync.Mutex // guards report write counters updated by pool goroutines
	logger *slog.Logger

	// guardErr is set when the delete guard skipped the deletes; the pass still completes.
	guardErr error
}

// RunPass executes one full pass and returns its report. The report is returned even when
// the pass aborts; its Phase shows how far it got.
func (c *Coordinator) RunPass(ctx context.Context) (*model.PassReport, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer c.running.Store(false)

	p := &pass{
		report: &model.PassReport{
			Phase:         model.PhaseInit,
			WriteFailures: make(map[string]int),
			Deleted:       make(map[string]int64),
			DeleteErrors:  make(map[string]error),
			StartedAt:     c.now(),
		},
		pool: &errgroup.Group{},
	}
	p.pool.SetLimit(c.writeConcurrency)
	p.logger = c.logger

	err := c.run(ctx, p)
	p.report.FinishedAt = c.now()
	c.emit(p.report, err)

	if err != nil {
		p.logger.ErrorContext(ctx, "reconciliation pass failed",
			"phase", p.report.Phase,
			"pages", p.report.Pages,
			"listings", p.report.Listings,
			"error", err,
		)
		return p.report, err
	}
	return p.report, nil
}

func (c *Coordinator) run(ctx context.Context, p *pass) error {
	if err := c.initPass(ctx, p); err != nil {
		return err
	}

	p.report.Phase = model.PhaseCrawling
	crawlErr := c.crawl(ctx, p)
	// In-flight writes finish whether or not the crawl completed.
	_ = p.pool.Wait()
	if crawlErr != nil {
		return crawlErr
	}

	p.report.Phase = model.PhaseSweeping
	if err := c.sweep(ctx, p); err != nil {
		return err
	}

	if err := c.finish(ctx); err != nil {
		return err
	}
	p.report.Phase = model.PhaseDone

	p.logger.InfoContext(ctx, "reconciliation pass complete",
		"pages", p.report.Pages,
		"listings", p.report.Listings,
		"new", p.report.NewListings,
		"written", p.report.Written,
		"stale", len(p.report.Stale),
		"duration", c.now().Sub(p.report.StartedAt),
	)
	return p.guardErr
}

// initPass resumes or starts a pass and bootstraps the tracker from the relational store.
func (c *Coordinator) initPass(ctx context.Context, p *pass) error {
	passID, resumed, err := c.kv.Get(ctx, PassMarkerKey)
	if err != nil {
		return trackerError("read pass marker", err)
	}

	if !resumed {
		// The previous pass completed (or none ran): start from clean namespaces.
		if _, err = c.tracker.Reset(ctx); err != nil {
			return err
		}
		if _, err = c.cache.Reset(ctx); err != nil {
			return err
		}
		passID = uuid.NewString()
		if err = c.kv.Set(ctx, PassMarkerKey, passID, 0); err != nil {
			return trackerError("write pass marker", err)
		}
	}

	p.report.PassID = passID
	p.report.Resumed = resumed
	p.logger = c.logger.With("pass_id", passID)
	p.logger.InfoContext(ctx, "reconciliation pass starting", "resumed", resumed)

	ids, err := c.relational.SelectAllIdentifiers(ctx)
	if err != nil {
		return fmt.Errorf("select existing identifiers: %w", err)
	}
	if _, err = c.tracker.Bootstrap(ctx, ids); err != nil {
		return err
	}
	p.report.Bootstrapped = len(ids)
	return nil
}

// crawl pulls pages until the source reports exhaustion.
func (c *Coordinator) crawl(ctx context.Context, p *pass) error {
	c.source.Reset()
	for {
		page, err := c.fetchPage(ctx, p)
		if err != nil {
			return err
		}
		p.report.Pages++
		if page.Exhausted() {
			p.logger.InfoContext(ctx, "source exhausted", "page", page.Number)
			return nil
		}

		for _, raw := range page.Listings {
			if err = c.processListing(ctx, p, raw); err != nil {
				return err
			}
		}
		p.logger.DebugContext(ctx, "page processed",
			"page", page.Number,
			"featured", page.Featured,
			"listings", len(page.Listings),
		)
	}
}

// fetchPage retries transient fetch failures with exponential backoff. A failed fetch is
// never treated as an empty page.
func (c *Coordinator) fetchPage(ctx context.Context, p *pass) (core.Page, error) {
	backoff := c.retryBackoff
	var lastErr error
	for attempt := 0; attempt <= c.fetchRetries; attempt++ {
		if attempt > 0 {
			p.logger.WarnContext(ctx, "retrying page fetch",
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				return core.Page{}, err
			}
			backoff = min(backoff*2, maxFetchBackoff)
		}

		page, err := c.source.NextPage(ctx)
		if err == nil {
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Page{}, ctxErr
		}
		lastErr = err
	}
	return core.Page{}, fmt.Errorf("%w: %d attempts: %w", ErrSourceUnavailable, c.fetchRetries+1, lastErr)
}

// processListing marks one listing live and schedules a write when it is new to the stores.
func (c *Coordinator) processListing(ctx context.Context, p *pass, raw model.RawListing) error {
	p.report.Listings++
	id := listing.IdentifierOf(raw.Data())

	wasTracked, err := c.tracker.IsTracked(ctx, id)
	if err != nil {
		return err
	}
	if wasTracked {
		if _, err = c.tracker.MarkLive(ctx, id); err != nil {
			return err
		}
		return nil
	}

	if err = c.tracker.InsertLive(ctx, id); err != nil {
		return err
	}
	p.report.NewListings++

	seen, err := c.cache.Seen(ctx, id)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	rec, _ := listing.Build(raw)
	p.pool.Go(func() error {
		out := c.writer.Write(ctx, rec)
		p.mu.Lock()
		defer p.mu.Unlock()
		if out.OK() {
			p.report.Written++
		}
		for _, res := range out.Results() {
			if !res.OK() {
				p.report.WriteFailures[res.Store]++
			}
		}
		return nil
	})

	return c.cache.MarkSeen(ctx, id)
}

// sweep deletes every identifier left not-live from both stores.
func (c *Coordinator) sweep(ctx context.Context, p *pass) error {
	stale, err := c.tracker.Sweep(ctx)
	if err != nil {
		return err
	}
	p.report.Stale = stale
	if len(stale) == 0 {
		return nil
	}

	if c.guardTripped(len(stale), p.report.Bootstrapped) {
		p.logger.ErrorContext(ctx, "stale set exceeds delete guard, skipping deletes",
			"stale", len(stale),
			"bootstrapped", p.report.Bootstrapped,
			"max_fraction", c.maxDeleteFraction,
		)
		p.guardErr = fmt.Errorf("%w: %d of %d identifiers stale", ErrDeleteGuardTripped, len(stale), p.report.Bootstrapped)
		return nil
	}

	p.logger.InfoContext(ctx, "deleting stale records",
		"count", len(stale),
		"job_identifiers", stale,
	)
	out := c.writer.Delete(ctx, stale)
	for _, res := range out.Results() {
		if res.Err != nil {
			p.report.DeleteErrors[res.Store] = res.Err
			continue
		}
		p.report.Deleted[res.Store] = res.Affected
	}
	return nil
}

func (c *Coordinator) guardTripped(stale, bootstrapped int) bool {
	if c.maxDeleteFraction <= 0 || bootstrapped == 0 {
		return false
	}
	return float64(stale)/float64(bootstrapped) > c.maxDeleteFraction
}

// finish clears pass state so the next pass starts fresh.
func (c *Coordinator) finish(ctx context.Context) error {
	if _, err := c.tracker.Reset(ctx); err != nil {
		return err
	}
	if _, err := c.cache.Reset(ctx); err != nil {
		return err
	}
	if _, err := c.kv.Delete(ctx, PassMarkerKey); err != nil {
		return trackerError("clear pass marker", err)
	}
	return nil
}

func (c *Coordinator) emit(r *model.PassReport, err error) {
	metrics.EmitPass(c.metrics, metrics.PassMetric{
		Phase:        string(r.Phase),
		Resumed:      r.Resumed,
		Pages:        r.Pages,
		Listings:     r.Listings,
		NewListings:  r.NewListings,
		Written:      r.Written,
		Stale:        len(r.Stale),
		Bootstrapped: r.Bootstrapped,
		Duration:     r.Duration(),
		Err:          err,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
