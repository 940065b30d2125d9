package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/observability/metrics"
	"github.com/target/jobsync/internal/observability/statsd"
)

// FanoutWriterOptions groups dependencies for FanoutWriter.
type FanoutWriterOptions struct {
	Relational core.RelationalStore // Required
	Document   core.DocumentStore   // Required
	Logger     *slog.Logger         // Optional: structured logger
	Metrics    statsd.Sink          // Optional: metrics sink (StatsD-compatible)
}

// FanoutWriter delivers canonical records, and stale-identifier deletes, to both stores.
// Store calls run concurrently and independently: a failure on one store never cancels,
// rolls back or retries the other.
type FanoutWriter struct {
	relational core.RelationalStore
	document   core.DocumentStore
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewFanoutWriter constructs a FanoutWriter.
func NewFanoutWriter(opts FanoutWriterOptions) (*FanoutWriter, error) {
	if opts.Relational == nil {
		return nil, errors.New("RelationalStore is required")
	}
	if opts.Document == nil {
		return nil, errors.New("DocumentStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FanoutWriter{
		relational: opts.Relational,
		document:   opts.Document,
		logger:     logger.With("component", "fanout_writer"),
		metrics:    opts.Metrics,
	}, nil
}

// Write inserts rec into both stores and reports each store's result.
func (w *FanoutWriter) Write(ctx context.Context, rec model.CanonicalRecord) model.WriteOutcome {
	out := model.WriteOutcome{
		JobIdentifier: rec.JobIdentifier,
		Relational:    model.StoreResult{Store: model.StoreRelational},
		Document:      model.StoreResult{Store: model.StoreDocument},
	}

	// Both goroutines return nil so one store's failure never short-circuits the other.
	var g errgroup.Group
	g.Go(func() error {
		out.Relational.Err = w.timed(model.StoreRelational, metrics.OpInsert, func() error {
			return w.relational.Insert(ctx, rec)
		})
		return nil
	})
	g.Go(func() error {
		out.Document.Err = w.timed(model.StoreDocument, metrics.OpInsert, func() error {
			return w.document.Insert(ctx, rec)
		})
		return nil
	})
	_ = g.Wait()

	for _, res := range out.Results() {
		if res.Err != nil {
			w.logger.ErrorContext(ctx, "store write failed",
				"job_identifier", rec.JobIdentifier,
				"store", res.Store,
				"error", res.Err,
			)
		}
	}
	return out
}

// Delete removes ids from both stores and reports each store's result.
func (w *FanoutWriter) Delete(ctx context.Context, ids []model.Identifier) model.DeleteOutcome {
	out := model.DeleteOutcome{
		Requested:  len(ids),
		Relational: model.StoreResult{Store: model.StoreRelational},
		Document:   model.StoreResult{Store: model.StoreDocument},
	}
	if len(ids) == 0 {
		return out
	}

	var g errgroup.Group
	g.Go(func() error {
		out.Relational.Err = w.timed(model.StoreRelational, metrics.OpDelete, func() error {
			n, err := w.relational.DeleteByIdentifiers(ctx, ids)
			out.Relational.Affected = n
			return err
		})
		return nil
	})
	g.Go(func() error {
		out.Document.Err = w.timed(model.StoreDocument, metrics.OpDelete, func() error {
			n, err := w.document.DeleteByIdentifiers(ctx, ids)
			out.Document.Affected = n
			return err
		})
		return nil
	})
	_ = g.Wait()

	for _, res := range out.Results() {
		if res.Err != nil {
			w.logger.ErrorContext(ctx, "store delete failed",
				"store", res.Store,
				"requested", len(ids),
				"deleted", res.Affected,
				"error", res.Err,
			)
			continue
		}
		w.logger.InfoContext(ctx, "stale records deleted",
			"store", res.Store,
			"requested", len(ids),
			"deleted", res.Affected,
		)
	}
	return out
}

func (w *FanoutWriter) timed(store, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.EmitStoreOp(w.metrics, metrics.StoreMetric{
		Store:    store,
		Op:       op,
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}
