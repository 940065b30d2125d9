package service

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// LocalLRU is a bounded in-process set of recently marked keys with per-entry TTL.
// It fronts the shared session cache so repeated lookups in one process skip a round trip.
// Concurrency: methods are safe for concurrent use.
type LocalLRU struct {
	mu     sync.Mutex
	cap    int
	ll     *list.List               // front = most-recently used
	items  map[string]*list.Element // key -> element
	now    func() time.Time
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type lruEntry struct {
	key    string
	expiry time.Time // zero means no expiry
}

// LocalLRUConfig groups constructor options.
type LocalLRUConfig struct {
	Capacity int
	Now      func() time.Time
}

const defaultLocalLRUCapacity = 10000

// NewLocalLRU creates a new LocalLRU with the given config.
func NewLocalLRU(cfg LocalLRUConfig) *LocalLRU {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultLocalLRUCapacity
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &LocalLRU{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, min(capacity, 1024)),
		now:   nowFn,
	}
}

// Contains reports whether key is present and not expired, refreshing its recency.
func (c *LocalLRU) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return false
	}
	ent := el.Value.(*lruEntry)
	if c.isExpired(ent) {
		c.removeElement(el)
		c.misses.Add(1)
		return false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return true
}

// Add inserts key or refreshes its TTL. ttl <= 0 means no expiration.
func (c *LocalLRU) Add(key string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	if el, found := c.items[key]; found {
		el.Value.(*lruEntry).expiry = exp
		c.ll.MoveToFront(el)
		return
	}

	c.items[key] = c.ll.PushFront(&lruEntry{key: key, expiry: exp})
	for c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
		c.evicts.Add(1)
	}
}

// Purge drops every entry.
func (c *LocalLRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

// Len returns the current number of entries, expired ones included until touched.
func (c *LocalLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// LocalLRUStats are simple counters for observability.
type LocalLRUStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *LocalLRU) Stats() LocalLRUStats {
	return LocalLRUStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.Len(),
		Capacity:  c.cap,
	}
}

// caller must hold c.mu
func (c *LocalLRU) isExpired(e *lruEntry) bool {
	return !e.expiry.IsZero() && c.now().After(e.expiry)
}

// caller must hold c.mu
func (c *LocalLRU) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry).key)
}
