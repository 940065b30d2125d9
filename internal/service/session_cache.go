package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
)

// CacheKeyPrefix namespaces session dedup entries. It never overlaps TrackerKeyPrefix.
const CacheKeyPrefix = "job_cache:"

const (
	cacheMarker       = "1"
	defaultSessionTTL = 24 * time.Hour
)

// SessionCacheOptions groups dependencies for SessionCache.
type SessionCacheOptions struct {
	KV            core.KeyValueStore // Required: shared key-value layer
	TTL           time.Duration      // Optional: lifetime of a marker, defaults to 24h
	LocalCapacity int                // Optional: in-process LRU size
	Logger        *slog.Logger
	Now           func() time.Time
}

// SessionCache remembers which identifiers were handed to the fan-out writer during the
// current pass. It is an optimization only; the sweep never consults it.
type SessionCache struct {
	kv     core.KeyValueStore
	ttl    time.Duration
	local  *LocalLRU
	logger *slog.Logger
}

// NewSessionCache constructs a SessionCache.
func NewSessionCache(opts SessionCacheOptions) (*SessionCache, error) {
	if opts.KV == nil {
		return nil, errors.New("KeyValueStore is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCache{
		kv:     opts.KV,
		ttl:    ttl,
		local:  NewLocalLRU(LocalLRUConfig{Capacity: opts.LocalCapacity, Now: opts.Now}),
		logger: logger.With("component", "session_cache"),
	}, nil
}

func cacheKey(id model.Identifier) string {
	return CacheKeyPrefix + string(id)
}

// Seen reports whether id was marked during this pass.
func (c *SessionCache) Seen(ctx context.Context, id model.Identifier) (bool, error) {
	key := cacheKey(id)
	if c.local.Contains(key) {
		return true, nil
	}
	ok, err := c.kv.Exists(ctx, key)
	if err != nil {
		return false, trackerError("cache lookup", err)
	}
	if ok {
		c.local.Add(key, c.ttl)
	}
	return ok, nil
}

// MarkSeen records id for the rest of the pass (bounded by the TTL).
func (c *SessionCache) MarkSeen(ctx context.Context, id model.Identifier) error {
	key := cacheKey(id)
	if err := c.kv.Set(ctx, key, cacheMarker, c.ttl); err != nil {
		return trackerError("cache mark", err)
	}
	c.local.Add(key, c.ttl)
	return nil
}

// Reset clears the namespace, local entries included.
func (c *SessionCache) Reset(ctx context.Context) (int64, error) {
	c.local.Purge()
	n, err := deletePrefix(ctx, c.kv, CacheKeyPrefix)
	if err != nil {
		return n, trackerError("cache reset", err)
	}
	c.logger.DebugContext(ctx, "session cache reset", "deleted", n)
	return n, nil
}

// Stats returns the in-process LRU counters.
func (c *SessionCache) Stats() LocalLRUStats {
	return c.local.Stats()
}
