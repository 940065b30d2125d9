package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobsync/internal/bootstrap"
	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/data"
	"github.com/target/jobsync/internal/service"
	"github.com/target/jobsync/internal/util"
)

const defaultRedisTimeout = 2 * time.Minute

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// withKV connects Redis for the duration of fn.
func withKV(ctx context.Context, cmdCtx *commandContext, fn func(kv *data.RedisKVRepo) error) error {
	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func(c redis.UniversalClient) {
		if closeErr := c.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}(client)

	return fn(data.NewRedisKVRepo(client))
}

type trackerReport struct {
	Counts      service.TrackerCounts
	CacheKeys   int
	PassID      string
	PassPending bool
}

func collectTrackerReport(ctx context.Context, kv core.KeyValueStore, logger *slog.Logger) (trackerReport, error) {
	tracker, err := service.NewLivenessTracker(service.LivenessTrackerOptions{KV: kv, Logger: logger})
	if err != nil {
		return trackerReport{}, err
	}

	var report trackerReport
	if report.Counts, err = tracker.Count(ctx); err != nil {
		return trackerReport{}, err
	}
	if report.CacheKeys, err = countPrefix(ctx, kv, service.CacheKeyPrefix); err != nil {
		return trackerReport{}, fmt.Errorf("count session cache: %w", err)
	}
	if report.PassID, report.PassPending, err = kv.Get(ctx, service.PassMarkerKey); err != nil {
		return trackerReport{}, fmt.Errorf("read pass marker: %w", err)
	}
	return report, nil
}

func countPrefix(ctx context.Context, kv core.KeyValueStore, prefix string) (int, error) {
	n := 0
	err := kv.ScanPrefix(ctx, prefix, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

func printTrackerReport(w io.Writer, r trackerReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"tracked", r.Counts.Total()},
		{"live", fmt.Sprintf("%d (%s)", r.Counts.Live, util.FormatPercent(r.Counts.Live, r.Counts.Total()))},
		{"not live", r.Counts.NotLive},
		{"unrecognised", r.Counts.Other},
		{"session cache keys", r.CacheKeys},
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%v\n", row.label, row.value); err != nil {
			return err
		}
	}
	pass := "none"
	if r.PassPending {
		pass = r.PassID + " (interrupted, next pass resumes)"
	}
	if err := writef(tw, "pass in progress\t%s\n", pass); err != nil {
		return err
	}
	return tw.Flush()
}

func runTrackerStats(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("tracker-stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmdCtx.Ctx, defaultRedisTimeout)
	defer cancel()

	return withKV(ctx, cmdCtx, func(kv *data.RedisKVRepo) error {
		report, err := collectTrackerReport(ctx, kv, cmdCtx.Logger)
		if err != nil {
			return err
		}
		return printTrackerReport(cmdCtx.Stdout, report)
	})
}

type trackerResetOptions struct {
	DryRun bool
	Yes    bool
}

func (o trackerResetOptions) IsDryRun() bool    { return o.DryRun }
func (o trackerResetOptions) IsYes() bool       { return o.Yes }
func (o trackerResetOptions) GetTarget() string { return "" }
func (o trackerResetOptions) GetWarning() string {
	return "WARNING: this removes every liveness tracker entry, session cache marker and the pass marker. " +
		"The next pass bootstraps from the relational store."
}

func parseTrackerResetFlags(args []string) (trackerResetOptions, error) {
	fs := newFlagSet("tracker-reset")
	var opts trackerResetOptions
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Show what would be deleted without deleting")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return trackerResetOptions{}, err
	}
	return opts, nil
}

type trackerResetResult struct {
	TrackerKeys int64
	CacheKeys   int64
	PassMarker  bool
}

func resetTrackerState(ctx context.Context, kv core.KeyValueStore, logger *slog.Logger) (trackerResetResult, error) {
	tracker, err := service.NewLivenessTracker(service.LivenessTrackerOptions{KV: kv, Logger: logger})
	if err != nil {
		return trackerResetResult{}, err
	}
	cache, err := service.NewSessionCache(service.SessionCacheOptions{KV: kv, Logger: logger})
	if err != nil {
		return trackerResetResult{}, err
	}

	var res trackerResetResult
	// The marker goes first; a resumed pass over an empty tracker sweeps nothing.
	marker, err := kv.Delete(ctx, service.PassMarkerKey)
	if err != nil {
		return res, fmt.Errorf("delete pass marker: %w", err)
	}
	res.PassMarker = marker > 0
	if res.TrackerKeys, err = tracker.Reset(ctx); err != nil {
		return res, err
	}
	if res.CacheKeys, err = cache.Reset(ctx); err != nil {
		return res, err
	}
	return res, nil
}

func runTrackerReset(cmdCtx *commandContext, args []string) error {
	opts, err := parseTrackerResetFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(cmdCtx, opts, "reset tracker state"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := signalContext(cmdCtx.Ctx, defaultRedisTimeout)
	defer cancel()

	return withKV(ctx, cmdCtx, func(kv *data.RedisKVRepo) error {
		if opts.DryRun {
			report, err := collectTrackerReport(ctx, kv, cmdCtx.Logger)
			if err != nil {
				return err
			}
			if err := writeln(cmdCtx.Stdout, "Dry run: nothing deleted. Would remove:"); err != nil {
				return err
			}
			return printTrackerReport(cmdCtx.Stdout, report)
		}

		res, err := resetTrackerState(ctx, kv, cmdCtx.Logger)
		if err != nil {
			return err
		}
		cmdCtx.Logger.Info("tracker reset complete",
			"tracker_keys", res.TrackerKeys,
			"cache_keys", res.CacheKeys,
			"pass_marker", res.PassMarker,
		)
		return writef(cmdCtx.Stdout, "Deleted %d tracker keys, %d session cache keys, pass marker removed: %t\n",
			res.TrackerKeys, res.CacheKeys, res.PassMarker)
	})
}
