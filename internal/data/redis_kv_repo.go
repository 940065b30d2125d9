package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// scanCount is the COUNT hint passed to SCAN.
	scanCount = 1000
	// pipelineBatch bounds the commands queued in a single pipeline round trip.
	pipelineBatch = 1000
)

var errEmptyKey = errors.New("key cannot be empty")

// RedisKVRepo implements core.KeyValueStore using Redis.
// Multi-key commands are split per key when the client is a cluster client, since
// MGET and DEL fail across hash slots.
type RedisKVRepo struct {
	client  redis.UniversalClient
	cluster *redis.ClusterClient
}

// NewRedisKVRepo creates a new RedisKVRepo with the given Redis client.
func NewRedisKVRepo(client redis.UniversalClient) *RedisKVRepo {
	repo := &RedisKVRepo{client: client}
	if cc, ok := client.(*redis.ClusterClient); ok {
		repo.cluster = cc
	}
	return repo
}

// Get retrieves a value from Redis by key.
func (r *RedisKVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errEmptyKey
	}

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return result, true, nil
}

// MGet retrieves the values of the given keys. Missing keys are absent from the result.
func (r *RedisKVRepo) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	if r.cluster != nil {
		return out, r.pipelinedGet(ctx, keys, out)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *RedisKVRepo) pipelinedGet(ctx context.Context, keys []string, out map[string]string) error {
	for start := 0; start < len(keys); start += pipelineBatch {
		chunk := keys[start:min(start+pipelineBatch, len(keys))]
		cmds := make([]*redis.StringCmd, len(chunk))
		// Pipelined reports only the first failed command; each one is checked below.
		_, _ = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, k := range chunk {
				cmds[i] = pipe.Get(ctx, k)
			}
			return nil
		})
		for i, cmd := range cmds {
			v, err := cmd.Result()
			switch {
			case err == nil:
				out[chunk[i]] = v
			case errors.Is(err, redis.Nil):
			default:
				return fmt.Errorf("redis pipelined get %q: %w", chunk[i], err)
			}
		}
	}
	return nil
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisKVRepo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// SetIfNotExists atomically sets a key only if it doesn't already exist.
func (r *RedisKVRepo) SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.setConditional(ctx, key, value, ttl, "NX")
}

// SetIfExists atomically overwrites a key only if it already exists.
func (r *RedisKVRepo) SetIfExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.setConditional(ctx, key, value, ttl, "XX")
}

// setConditional issues SET with NX or XX. SETNX followed by EXPIRE is not atomic, so the
// TTL always travels with the SET.
func (r *RedisKVRepo) setConditional(
	ctx context.Context,
	key, value string,
	ttl time.Duration,
	mode string,
) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}

	args := redis.SetArgs{Mode: mode}
	if ttl > 0 {
		args.TTL = ttl
	}
	status, err := r.client.SetArgs(ctx, key, value, args).Result()
	if err != nil {
		// A condition that is not met comes back as a nil reply.
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis SET %s: %w", mode, err)
	}
	return status == "OK", nil
}

// SetManyIfNotExists sets every absent key to value using pipelined SET NX commands.
func (r *RedisKVRepo) SetManyIfNotExists(
	ctx context.Context,
	keys []string,
	value string,
	ttl time.Duration,
) (int, error) {
	set := 0
	for start := 0; start < len(keys); start += pipelineBatch {
		chunk := keys[start:min(start+pipelineBatch, len(keys))]
		cmds := make([]*redis.BoolCmd, 0, len(chunk))
		_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, k := range chunk {
				if k == "" {
					continue
				}
				cmds = append(cmds, pipe.SetNX(ctx, k, value, max(ttl, 0)))
			}
			return nil
		})
		if err != nil {
			return set, fmt.Errorf("redis pipelined SET NX: %w", err)
		}
		for _, cmd := range cmds {
			if cmd.Val() {
				set++
			}
		}
	}
	return set, nil
}

// Exists checks if a key exists in Redis.
func (r *RedisKVRepo) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}

	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return result > 0, nil
}

// Delete removes keys from Redis and returns how many existed.
func (r *RedisKVRepo) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	if r.cluster == nil {
		var deleted int64
		for start := 0; start < len(keys); start += pipelineBatch {
			chunk := keys[start:min(start+pipelineBatch, len(keys))]
			n, err := r.client.Del(ctx, chunk...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += n
		}
		return deleted, nil
	}

	var deleted int64
	for start := 0; start < len(keys); start += pipelineBatch {
		chunk := keys[start:min(start+pipelineBatch, len(keys))]
		cmds := make([]*redis.IntCmd, len(chunk))
		_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, k := range chunk {
				cmds[i] = pipe.Del(ctx, k)
			}
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("redis pipelined del: %w", err)
		}
		for _, cmd := range cmds {
			deleted += cmd.Val()
		}
	}
	return deleted, nil
}

// ScanPrefix walks every key starting with prefix and hands them to fn in batches.
// fn is never called concurrently, and no further batches are delivered once it fails.
// On a cluster every master is scanned.
func (r *RedisKVRepo) ScanPrefix(ctx context.Context, prefix string, fn func(keys []string) error) error {
	if prefix == "" {
		return errors.New("prefix cannot be empty")
	}
	pattern := escapeGlob(prefix) + "*"

	if r.cluster != nil {
		deliver := serialize(fn)
		return r.cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scanNode(ctx, node, pattern, deliver)
		})
	}
	return scanNode(ctx, r.client, pattern, fn)
}

// serialize wraps fn for callers on several goroutines (ForEachMaster scans masters in
// parallel). After the first error every later call returns that error without running fn.
func serialize(fn func([]string) error) func([]string) error {
	var (
		mu      sync.Mutex
		stopErr error
	)
	return func(keys []string) error {
		mu.Lock()
		defer mu.Unlock()
		if stopErr != nil {
			return stopErr
		}
		if err := fn(keys); err != nil {
			stopErr = err
			return err
		}
		return nil
	}
}

// scanNode runs a SCAN cursor on one node, dropping keys SCAN returns more than once.
// Masters own disjoint slots, so duplicates only occur within a node.
func scanNode(
	ctx context.Context,
	client redis.Cmdable,
	pattern string,
	fn func([]string) error,
) error {
	seen := make(map[string]struct{})
	iter := client.Scan(ctx, 0, pattern, scanCount).Iterator()
	batch := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		key := iter.Val()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		batch = append(batch, key)
		if len(batch) >= scanCount {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]string, 0, scanCount)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// escapeGlob escapes the characters SCAN MATCH treats as glob syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Health checks the health of the Redis connection.
func (r *RedisKVRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
