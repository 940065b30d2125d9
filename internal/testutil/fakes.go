package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
)

// FakeStore is an in-memory relational and document store.
type FakeStore struct {
	mu          sync.Mutex
	records     map[model.Identifier]model.CanonicalRecord
	deleteCalls [][]model.Identifier
	inserts     int

	// InsertErr, when set, decides per identifier whether Insert fails.
	InsertErr func(id model.Identifier) error
	// DeleteErr fails every DeleteByIdentifiers call.
	DeleteErr error
	// SelectErr fails SelectAllIdentifiers.
	SelectErr error
	// InsertDelay slows every Insert to expose concurrency.
	InsertDelay time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

var (
	_ core.RelationalStore = (*FakeStore)(nil)
	_ core.DocumentStore   = (*FakeStore)(nil)
)

// NewFakeStore creates a FakeStore seeded with the given identifiers.
func NewFakeStore(seed ...model.Identifier) *FakeStore {
	s := &FakeStore{records: make(map[model.Identifier]model.CanonicalRecord)}
	for _, id := range seed {
		s.records[id] = model.CanonicalRecord{JobIdentifier: id}
	}
	return s
}

// SelectAllIdentifiers implements core.RelationalStore.
func (s *FakeStore) SelectAllIdentifiers(_ context.Context) ([]model.Identifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SelectErr != nil {
		return nil, s.SelectErr
	}
	return s.identifiersLocked(), nil
}

// Insert implements core.RelationalStore and core.DocumentStore.
func (s *FakeStore) Insert(ctx context.Context, rec model.CanonicalRecord) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.maxInflight.Load()
		if n <= peak || s.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	if s.InsertDelay > 0 {
		select {
		case <-time.After(s.InsertDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.InsertErr != nil {
		if err := s.InsertErr(rec.JobIdentifier); err != nil {
			return err
		}
	}
	s.records[rec.JobIdentifier] = rec
	return nil
}

// DeleteByIdentifiers implements core.RelationalStore and core.DocumentStore.
func (s *FakeStore) DeleteByIdentifiers(_ context.Context, ids []model.Identifier) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, append([]model.Identifier(nil), ids...))
	if s.DeleteErr != nil {
		return 0, s.DeleteErr
	}
	var n int64
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Identifiers returns the stored identifiers, sorted.
func (s *FakeStore) Identifiers() []model.Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identifiersLocked()
}

// Record returns the stored record for id.
func (s *FakeStore) Record(id model.Identifier) (model.CanonicalRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Inserts returns how many Insert calls were made, failed ones included.
func (s *FakeStore) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// DeleteCalls returns the identifiers passed to each DeleteByIdentifiers call.
func (s *FakeStore) DeleteCalls() [][]model.Identifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]model.Identifier(nil), s.deleteCalls...)
}

// MaxConcurrentInserts returns the peak number of overlapping Insert calls.
func (s *FakeStore) MaxConcurrentInserts() int {
	return int(s.maxInflight.Load())
}

func (s *FakeStore) identifiersLocked() []model.Identifier {
	ids := make([]model.Identifier, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FakeSource replays a fixed list of pages. After the last page it returns empty pages.
type FakeSource struct {
	mu     sync.Mutex
	pages  []core.Page
	next   int
	calls  int
	resets int

	// Failures maps a page index to the errors returned, in order, before that page succeeds.
	Failures map[int][]error
}

var _ core.Source = (*FakeSource)(nil)

// NewFakeSource creates a FakeSource over pages.
func NewFakeSource(pages ...core.Page) *FakeSource {
	return &FakeSource{pages: pages, Failures: make(map[int][]error)}
}

// NextPage implements core.Source.
func (f *FakeSource) NextPage(ctx context.Context) (core.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if err := ctx.Err(); err != nil {
		return core.Page{}, err
	}
	if errs := f.Failures[f.next]; len(errs) > 0 {
		f.Failures[f.next] = errs[1:]
		return core.Page{}, errs[0]
	}
	if f.next >= len(f.pages) {
		return core.Page{Number: f.next + 1}, nil
	}
	p := f.pages[f.next]
	f.next++
	return p, nil
}

// Reset implements core.Source.
func (f *FakeSource) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = 0
	f.resets++
}

// Calls returns how many times NextPage was called.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Resets returns how many times Reset was called.
func (f *FakeSource) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}
