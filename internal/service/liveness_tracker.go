package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/observability/statsd"
)

// TrackerKeyPrefix namespaces liveness entries in the key-value layer.
const TrackerKeyPrefix = "job_identifiers:"

const (
	valueLive    = "true"
	valueNotLive = "false"

	defaultTrackerBatchSize = 1000
)

// LivenessTrackerOptions groups dependencies for LivenessTracker.
type LivenessTrackerOptions struct {
	KV        core.KeyValueStore // Required: shared key-value layer
	BatchSize int                // Optional: keys per bootstrap pipeline / MGET / DEL
	Logger    *slog.Logger       // Optional: structured logger
	Metrics   statsd.Sink        // Optional: metrics sink
}

// LivenessTracker is the mark-and-sweep state of one pass: identifier -> live/not-live.
//
// Entries are created not-live by Bootstrap, or live by InsertLive for identifiers first seen
// mid-pass. MarkLive only flips entries that already exist. Sweep returns and removes every
// entry still not-live. Sweep must not run concurrently with MarkLive/InsertLive for the same
// pass; the coordinator is the single caller of both.
//
// Every key-value failure is returned wrapped in ErrTrackerUnavailable.
type LivenessTracker struct {
	kv        core.KeyValueStore
	batchSize int
	logger    *slog.Logger
	metrics   statsd.Sink
}

// TrackerCounts summarizes tracker state.
type TrackerCounts struct {
	Live    int
	NotLive int
	Other   int
}

// Total returns the number of tracked identifiers.
func (c TrackerCounts) Total() int { return c.Live + c.NotLive + c.Other }

// NewLivenessTracker constructs a LivenessTracker.
func NewLivenessTracker(opts LivenessTrackerOptions) (*LivenessTracker, error) {
	if opts.KV == nil {
		return nil, errors.New("KeyValueStore is required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultTrackerBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LivenessTracker{
		kv:        opts.KV,
		batchSize: batch,
		logger:    logger.With("component", "liveness_tracker"),
		metrics:   opts.Metrics,
	}, nil
}

func trackerKey(id model.Identifier) string {
	return TrackerKeyPrefix + string(id)
}

// Bootstrap creates a not-live entry for every identifier that is not tracked yet.
// Existing entries, live ones included, are left untouched, so re-running it is safe.
// Returns how many entries were created.
func (t *LivenessTracker) Bootstrap(ctx context.Context, ids []model.Identifier) (int, error) {
	created := 0
	for start := 0; start < len(ids); start += t.batchSize {
		chunk := ids[start:min(start+t.batchSize, len(ids))]
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = trackerKey(id)
		}
		n, err := t.kv.SetManyIfNotExists(ctx, keys, valueNotLive, 0)
		created += n
		if err != nil {
			return created, trackerError("bootstrap", err)
		}
	}

	t.logger.InfoContext(ctx, "liveness tracker bootstrapped",
		"identifiers", len(ids),
		"created", created,
	)
	if t.metrics != nil {
		t.metrics.Gauge("tracker.bootstrapped", float64(created), nil)
	}
	return created, nil
}

// MarkLive flips an existing entry to live. Unknown identifiers are left alone and false is returned.
func (t *LivenessTracker) MarkLive(ctx context.Context, id model.Identifier) (bool, error) {
	ok, err := t.kv.SetIfExists(ctx, trackerKey(id), valueLive, 0)
	if err != nil {
		return false, trackerError("mark live", err)
	}
	return ok, nil
}

// InsertLive creates (or overwrites) the entry for a brand-new identifier in the live state.
func (t *LivenessTracker) InsertLive(ctx context.Context, id model.Identifier) error {
	if err := t.kv.Set(ctx, trackerKey(id), valueLive, 0); err != nil {
		return trackerError("insert live", err)
	}
	return nil
}

// IsTracked reports whether id has an entry, regardless of its liveness.
func (t *LivenessTracker) IsTracked(ctx context.Context, id model.Identifier) (bool, error) {
	ok, err := t.kv.Exists(ctx, trackerKey(id))
	if err != nil {
		return false, trackerError("is tracked", err)
	}
	return ok, nil
}

// Sweep returns every identifier still not-live, sorted, and removes those entries.
// Live entries stay in place until Reset.
func (t *LivenessTracker) Sweep(ctx context.Context) ([]model.Identifier, error) {
	var staleKeys []string
	err := t.scanValues(ctx, func(values map[string]string) {
		for key, v := range values {
			if v == valueNotLive {
				staleKeys = append(staleKeys, key)
			}
		}
	})
	if err != nil {
		return nil, trackerError("sweep scan", err)
	}

	sort.Strings(staleKeys)
	if err = t.deleteKeys(ctx, staleKeys); err != nil {
		return nil, trackerError("sweep delete", err)
	}

	stale := make([]model.Identifier, len(staleKeys))
	for i, key := range staleKeys {
		stale[i] = model.Identifier(strings.TrimPrefix(key, TrackerKeyPrefix))
	}

	t.logger.InfoContext(ctx, "liveness tracker swept", "stale", len(stale))
	if t.metrics != nil {
		t.metrics.Gauge("tracker.stale", float64(len(stale)), nil)
	}
	return stale, nil
}

// Reset removes every tracker entry. Returns how many keys were deleted.
func (t *LivenessTracker) Reset(ctx context.Context) (int64, error) {
	n, err := deletePrefix(ctx, t.kv, TrackerKeyPrefix)
	if err != nil {
		return n, trackerError("reset", err)
	}
	t.logger.InfoContext(ctx, "liveness tracker reset", "deleted", n)
	return n, nil
}

// Count tallies live and not-live entries.
func (t *LivenessTracker) Count(ctx context.Context) (TrackerCounts, error) {
	var counts TrackerCounts
	err := t.scanValues(ctx, func(values map[string]string) {
		for _, v := range values {
			switch v {
			case valueLive:
				counts.Live++
			case valueNotLive:
				counts.NotLive++
			default:
				counts.Other++
			}
		}
	})
	if err != nil {
		return TrackerCounts{}, trackerError("count", err)
	}
	return counts, nil
}

// scanValues walks the tracker namespace and hands fn the values of each MGET batch.
func (t *LivenessTracker) scanValues(ctx context.Context, fn func(values map[string]string)) error {
	return t.kv.ScanPrefix(ctx, TrackerKeyPrefix, func(keys []string) error {
		for start := 0; start < len(keys); start += t.batchSize {
			values, err := t.kv.MGet(ctx, keys[start:min(start+t.batchSize, len(keys))])
			if err != nil {
				return err
			}
			fn(values)
		}
		return nil
	})
}

func (t *LivenessTracker) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += t.batchSize {
		if _, err := t.kv.Delete(ctx, keys[start:min(start+t.batchSize, len(keys))]...); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix removes every key under prefix, batch by batch as the scan yields them.
func deletePrefix(ctx context.Context, kv core.KeyValueStore, prefix string) (int64, error) {
	var deleted int64
	err := kv.ScanPrefix(ctx, prefix, func(keys []string) error {
		n, err := kv.Delete(ctx, keys...)
		deleted += n
		return err
	})
	return deleted, err
}
