package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/target/jobsync/internal/domain/model"
	obserrors "github.com/target/jobsync/internal/observability/errors"
	"github.com/target/jobsync/internal/observability/notify"
	"github.com/target/jobsync/internal/service/failurenotifier"
)

// PassRunner runs one reconciliation pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*model.PassReport, error)
}

// SyncRunnerOptions groups dependencies for SyncRunner.
type SyncRunnerOptions struct {
	Runner      PassRunner               // Required: usually *Coordinator
	Interval    time.Duration            // Zero runs one pass and returns
	PassTimeout time.Duration            // Optional: bound on each pass
	Notifier    *failurenotifier.Service // Optional: failure notifications
	Logger      *slog.Logger             // Optional: structured logger
}

// SyncRunner schedules reconciliation passes.
//
// With a zero interval it runs exactly one pass and returns its error. Otherwise it runs a
// pass after a start jitter and then on every tick until the context is cancelled; a failed
// pass is logged and notified and the loop keeps going.
type SyncRunner struct {
	runner      PassRunner
	interval    time.Duration
	passTimeout time.Duration
	notifier    *failurenotifier.Service
	logger      *slog.Logger
}

// NewSyncRunner constructs a new SyncRunner.
func NewSyncRunner(opts SyncRunnerOptions) (*SyncRunner, error) {
	if opts.Runner == nil {
		return nil, errors.New("PassRunner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncRunner{
		runner:      opts.Runner,
		interval:    max(opts.Interval, 0),
		passTimeout: max(opts.PassTimeout, 0),
		notifier:    opts.Notifier,
		logger:      logger.With("component", "sync_runner"),
	}, nil
}

// Run executes passes until done. Returns nil on graceful shutdown (context.Canceled).
func (s *SyncRunner) Run(ctx context.Context) error {
	if s.interval == 0 {
		_, err := s.RunOnce(ctx)
		return err
	}

	s.logger.InfoContext(ctx, "starting sync runner", "interval", s.interval)

	// Add jitter so several instances started together do not crawl in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil && isContextCancellation(err) {
		return s.stopped(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return s.stopped(ctx)
		case <-ticker.C:
			// Failures are already logged and notified; keep ticking.
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single pass, reporting any failure. Shutdown cancellations are not notified.
func (s *SyncRunner) RunOnce(ctx context.Context) (*model.PassReport, error) {
	passCtx := ctx
	if s.passTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, s.passTimeout)
		defer cancel()
	}

	report, err := s.runner.RunPass(passCtx)
	if err == nil {
		return report, nil
	}

	if isContextCancellation(err) && ctx.Err() != nil {
		s.logger.InfoContext(ctx, "pass interrupted by shutdown", "error", err)
		return report, err
	}

	s.logger.ErrorContext(ctx, "reconciliation pass failed", "error", err)
	s.notify(ctx, report, err)
	return report, err
}

func (s *SyncRunner) notify(ctx context.Context, report *model.PassReport, err error) {
	if !s.notifier.Enabled() {
		return
	}

	payload := notify.PassFailurePayload{
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		Severity:   notify.SeverityCritical,
		OccurredAt: time.Now(),
	}
	if errors.Is(err, ErrDeleteGuardTripped) {
		payload.Severity = notify.SeverityWarning
	}
	if report != nil {
		payload.PassID = report.PassID
		payload.Phase = string(report.Phase)
		payload.Resumed = report.Resumed
		payload.Pages = report.Pages
		payload.Listings = report.Listings
	}

	// Deliver even when the pass context expired.
	s.notifier.NotifyPassFailure(context.WithoutCancel(ctx), payload)
}

func (s *SyncRunner) stopped(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sync runner stopping", "reason", ctx.Err())
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SyncRunner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	_ = sleepCtx(ctx, jitter)
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
