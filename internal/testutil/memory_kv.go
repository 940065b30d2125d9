package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryKV is an in-memory core.KeyValueStore for unit tests.
// Set Err to make every call fail; FailOn fails only the named operations.
// TTLs are recorded but never expire entries.
type MemoryKV struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	calls  map[string]int
	Err    error
	FailOn map[string]error
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		data:   make(map[string]string),
		ttls:   make(map[string]time.Duration),
		calls:  make(map[string]int),
		FailOn: make(map[string]error),
	}
}

// Fail makes op return err from now on.
func (m *MemoryKV) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailOn[op] = err
}

func (m *MemoryKV) check(op string) error {
	m.calls[op]++
	if m.Err != nil {
		return m.Err
	}
	return m.FailOn[op]
}

// Calls returns how many times op was invoked.
func (m *MemoryKV) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Snapshot returns a copy of every key with the given prefix.
func (m *MemoryKV) Snapshot(prefix string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// TTL returns the ttl recorded for key.
func (m *MemoryKV) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Get implements core.KeyValueStore.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("Get"); err != nil {
		return "", false, err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// MGet implements core.KeyValueStore.
func (m *MemoryKV) MGet(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("MGet"); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set implements core.KeyValueStore.
func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("Set"); err != nil {
		return err
	}
	m.put(key, value, ttl)
	return nil
}

// SetIfNotExists implements core.KeyValueStore.
func (m *MemoryKV) SetIfNotExists(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("SetIfNotExists"); err != nil {
		return false, err
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

// SetIfExists implements core.KeyValueStore.
func (m *MemoryKV) SetIfExists(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("SetIfExists"); err != nil {
		return false, err
	}
	if _, ok := m.data[key]; !ok {
		return false, nil
	}
	m.put(key, value, ttl)
	return true, nil
}

// SetManyIfNotExists implements core.KeyValueStore.
func (m *MemoryKV) SetManyIfNotExists(_ context.Context, keys []string, value string, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("SetManyIfNotExists"); err != nil {
		return 0, err
	}
	set := 0
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			continue
		}
		m.put(k, value, ttl)
		set++
	}
	return set, nil
}

// Exists implements core.KeyValueStore.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("Exists"); err != nil {
		return false, err
	}
	_, ok := m.data[key]
	return ok, nil
}

// Delete implements core.KeyValueStore.
func (m *MemoryKV) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("Delete"); err != nil {
		return 0, err
	}
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			delete(m.ttls, k)
			n++
		}
	}
	return n, nil
}

// ScanPrefix implements core.KeyValueStore. Keys are delivered sorted in a single batch.
func (m *MemoryKV) ScanPrefix(_ context.Context, prefix string, fn func(keys []string) error) error {
	m.mu.Lock()
	if err := m.check("ScanPrefix"); err != nil {
		m.mu.Unlock()
		return err
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return fn(keys)
}

// Health implements core.KeyValueStore.
func (m *MemoryKV) Health(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check("Health")
}

func (m *MemoryKV) put(key, value string, ttl time.Duration) {
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = ttl
	} else {
		delete(m.ttls, key)
	}
}
