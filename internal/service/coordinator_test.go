package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobsync/config"
	httpsource "github.com/target/jobsync/internal/adapters/source"
	"github.com/target/jobsync/internal/core"
	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/testutil"
)

type coordinatorHarness struct {
	kv         *testutil.MemoryKV
	relational *testutil.FakeStore
	document   *testutil.FakeStore
	source     *testutil.FakeSource
	sink       *testutil.RecordingSink
	coord      *Coordinator
}

type harnessOption func(*CoordinatorOptions)

func newCoordinatorHarness(t *testing.T, source *testutil.FakeSource, seed []model.Identifier, opts ...harnessOption) *coordinatorHarness {
	t.Helper()
	h := &coordinatorHarness{
		kv:         testutil.NewMemoryKV(),
		relational: testutil.NewFakeStore(seed...),
		document:   testutil.NewFakeStore(seed...),
		source:     source,
		sink:       &testutil.RecordingSink{},
	}

	tracker, err := NewLivenessTracker(LivenessTrackerOptions{KV: h.kv})
	require.NoError(t, err)
	cache, err := NewSessionCache(SessionCacheOptions{KV: h.kv})
	require.NoError(t, err)
	writer, err := NewFanoutWriter(FanoutWriterOptions{Relational: h.relational, Document: h.document})
	require.NoError(t, err)

	cfg := CoordinatorOptions{
		Source:           source,
		Relational:       h.relational,
		KV:               h.kv,
		Tracker:          tracker,
		Cache:            cache,
		Writer:           writer,
		WriteConcurrency: 4,
		FetchRetries:     2,
		RetryBackoff:     time.Millisecond,
		Metrics:          h.sink,
		Now:              testutil.FixedTimeFunc(testutil.TestTime()),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.coord, err = NewCoordinator(cfg)
	require.NoError(t, err)
	return h
}

func (h *coordinatorHarness) markerPresent(t *testing.T) bool {
	t.Helper()
	_, ok, err := h.kv.Get(context.Background(), PassMarkerKey)
	require.NoError(t, err)
	return ok
}

func TestNewCoordinator_Validation(t *testing.T) {
	_, err := NewCoordinator(CoordinatorOptions{})
	assert.Error(t, err)
}

// Bootstrap {A,B}; the pass observes only A.
func TestCoordinator_ScenarioA_UnobservedIdentifierIsSwept(t *testing.T) {
	idA := testutil.ListingID("R1", "Engineer", "1 Main St")
	idB := testutil.ListingID("R2", "Analyst", "2 Main St")
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("R1", "Engineer", "1 Main St")))
	h := newCoordinatorHarness(t, source, []model.Identifier{idA, idB})

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.PhaseDone, report.Phase)
	assert.Equal(t, []model.Identifier{idB}, report.Stale)
	assert.Equal(t, []model.Identifier{idA}, h.relational.Identifiers())
	assert.Equal(t, []model.Identifier{idA}, h.document.Identifiers())
	assert.Equal(t, int64(1), report.Deleted[model.StoreRelational])
	assert.Equal(t, int64(1), report.Deleted[model.StoreDocument])
	assert.Zero(t, h.relational.Inserts(), "already-stored identifiers are not rewritten")
	assert.Equal(t, 2, report.Bootstrapped)
}

// Empty stores; one new listing appears.
func TestCoordinator_ScenarioB_NewListingWrittenToBothStores(t *testing.T) {
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("X1", "Eng", "5thAve")))
	h := newCoordinatorHarness(t, source, nil)

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, h.relational.Inserts())
	assert.Equal(t, 1, h.document.Inserts())
	assert.Equal(t, []model.Identifier{"X1_Eng_5thAve"}, h.relational.Identifiers())
	assert.Equal(t, []model.Identifier{"X1_Eng_5thAve"}, h.document.Identifiers())
	assert.Empty(t, h.relational.DeleteCalls())
	assert.Empty(t, h.document.DeleteCalls())

	assert.Equal(t, 2, report.Pages, "the terminating empty page is counted")
	assert.Equal(t, 1, report.Listings)
	assert.Equal(t, 1, report.NewListings)
	assert.Equal(t, 1, report.Written)
	assert.Empty(t, report.Stale)

	rec, ok := h.document.Record("X1_Eng_5thAve")
	require.True(t, ok)
	assert.Equal(t, "Eng", rec.Text(model.FieldTitle))
}

// A transport error mid-pass must never reach the sweep.
func TestCoordinator_ScenarioC_FetchFailureAbortsWithoutSweep(t *testing.T) {
	idA := testutil.ListingID("R1", "Engineer", "1 Main St")
	idB := testutil.ListingID("R2", "Analyst", "2 Main St")
	source := testutil.NewFakeSource(
		testutil.PageOf(1, testutil.Listing("R1", "Engineer", "1 Main St")),
		testutil.PageOf(2, testutil.Listing("R3", "Designer", "3 Main St")),
	)
	transport := errors.New("dial tcp: connection reset by peer")
	source.Failures[1] = []error{transport, transport, transport}
	h := newCoordinatorHarness(t, source, []model.Identifier{idA, idB})

	report, err := h.coord.RunPass(context.Background())

	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, transport)
	assert.Equal(t, model.PhaseCrawling, report.Phase)
	assert.Empty(t, report.Stale)
	assert.Empty(t, h.relational.DeleteCalls())
	assert.Empty(t, h.document.DeleteCalls())
	assert.Equal(t, []model.Identifier{idA, idB}, h.relational.Identifiers())
	assert.True(t, h.markerPresent(t), "an aborted pass keeps its marker")
	assert.Equal(t, 4, source.Calls(), "one success then three failed attempts")

	live := h.kv.Snapshot(TrackerKeyPrefix)
	assert.Equal(t, "true", live[TrackerKeyPrefix+string(idA)], "tracker state survives for the resumed pass")
	assert.Equal(t, "false", live[TrackerKeyPrefix+string(idB)])
}

// A 200 whose body carries no listings array is a failed fetch, not the end of the source.
func TestCoordinator_PayloadWithoutListingsNeverSweeps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"rate limited","retry_after":30}`))
	}))
	defer srv.Close()

	src, err := httpsource.New(httpsource.Options{
		Config:     config.SourceConfig{BaseURL: srv.URL, FirstPage: 1},
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	idA := testutil.ListingID("R1", "Engineer", "1 Main St")
	idB := testutil.ListingID("R2", "Analyst", "2 Main St")
	h := newCoordinatorHarness(t, testutil.NewFakeSource(), []model.Identifier{idA, idB},
		func(o *CoordinatorOptions) { o.Source = src })

	report, err := h.coord.RunPass(context.Background())

	require.ErrorIs(t, err, ErrSourceUnavailable)
	var fetchErr *httpsource.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, model.PhaseCrawling, report.Phase)
	assert.Empty(t, report.Stale)
	assert.Empty(t, h.relational.DeleteCalls())
	assert.Empty(t, h.document.DeleteCalls())
	assert.Equal(t, []model.Identifier{idA, idB}, h.relational.Identifiers())
	assert.Equal(t, []model.Identifier{idA, idB}, h.document.Identifiers())
}

func TestCoordinator_FetchRetrySucceeds(t *testing.T) {
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("X1", "Eng", "5thAve")))
	source.Failures[0] = []error{errors.New("502 bad gateway")}
	h := newCoordinatorHarness(t, source, nil)

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.PhaseDone, report.Phase)
	assert.Equal(t, 1, report.Written)
}

// The same listing on two overlapping pages yields one insert pair.
func TestCoordinator_ScenarioD_OverlappingPagesWriteOnce(t *testing.T) {
	dup := testutil.Listing("X1", "Eng", "5thAve")
	source := testutil.NewFakeSource(
		testutil.PageOf(1, dup, testutil.Listing("X2", "Ops", "6thAve")),
		testutil.PageOf(2, dup),
	)
	h := newCoordinatorHarness(t, source, nil)

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, h.relational.Inserts())
	assert.Equal(t, 2, h.document.Inserts())
	assert.Equal(t, 3, report.Listings)
	assert.Equal(t, 2, report.NewListings)
	assert.Equal(t, 2, report.Written)
}

// A relational failure leaves the record in the document store only and the pass continues.
func TestCoordinator_ScenarioE_PartialWriteFailureContinues(t *testing.T) {
	failing := testutil.ListingID("X1", "Eng", "5thAve")
	source := testutil.NewFakeSource(testutil.PageOf(1,
		testutil.Listing("X1", "Eng", "5thAve"),
		testutil.Listing("X2", "Ops", "6thAve"),
	))
	h := newCoordinatorHarness(t, source, nil)
	h.relational.InsertErr = func(id model.Identifier) error {
		if id == failing {
			return errors.New("value too long for type character varying")
		}
		return nil
	}

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	_, inRelational := h.relational.Record(failing)
	_, inDocument := h.document.Record(failing)
	assert.False(t, inRelational)
	assert.True(t, inDocument)

	next := testutil.ListingID("X2", "Ops", "6thAve")
	_, ok := h.relational.Record(next)
	assert.True(t, ok, "the next listing is still processed")

	assert.Equal(t, 1, report.WriteFailures[model.StoreRelational])
	assert.Zero(t, report.WriteFailures[model.StoreDocument])
	assert.Equal(t, 1, report.Written)
}

func TestCoordinator_SecondPassIsIncremental(t *testing.T) {
	source := testutil.NewFakeSource(testutil.PageOf(1,
		testutil.Listing("X1", "Eng", "5thAve"),
		testutil.Listing("X2", "Ops", "6thAve"),
	))
	h := newCoordinatorHarness(t, source, nil)
	ctx := context.Background()

	first, err := h.coord.RunPass(ctx)
	require.NoError(t, err)
	second, err := h.coord.RunPass(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.PassID, second.PassID)
	assert.False(t, second.Resumed)
	assert.Equal(t, 2, second.Bootstrapped)
	assert.Zero(t, second.Written)
	assert.Equal(t, 2, h.relational.Inserts(), "unchanged listings are not rewritten on later passes")
	assert.Empty(t, second.Stale)
	assert.Equal(t, 2, source.Resets())
}

func TestCoordinator_CompletedPassClearsState(t *testing.T) {
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("X1", "Eng", "5thAve")))
	h := newCoordinatorHarness(t, source, []model.Identifier{"stale_one_None"})

	_, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.kv.Snapshot(TrackerKeyPrefix))
	assert.Empty(t, h.kv.Snapshot(CacheKeyPrefix))
	assert.False(t, h.markerPresent(t))
}

func TestCoordinator_ResumesInterruptedPass(t *testing.T) {
	ctx := context.Background()
	idB := testutil.ListingID("R2", "Analyst", "2 Main St")
	h := newCoordinatorHarness(t, testutil.NewFakeSource(), []model.Identifier{idB})

	// State left behind by an attempt that saw B before it was interrupted.
	require.NoError(t, h.kv.Set(ctx, PassMarkerKey, "interrupted-pass", 0))
	require.NoError(t, h.kv.Set(ctx, TrackerKeyPrefix+string(idB), "true", 0))

	report, err := h.coord.RunPass(ctx)
	require.NoError(t, err)

	assert.True(t, report.Resumed)
	assert.Equal(t, "interrupted-pass", report.PassID)
	assert.Empty(t, report.Stale, "entries marked live before the interruption are kept")
	assert.Equal(t, []model.Identifier{idB}, h.relational.Identifiers())
	assert.False(t, h.markerPresent(t))
}

func TestCoordinator_FreshPassDiscardsLeftoverState(t *testing.T) {
	ctx := context.Background()
	idB := testutil.ListingID("R2", "Analyst", "2 Main St")
	h := newCoordinatorHarness(t, testutil.NewFakeSource(), []model.Identifier{idB})

	// Leftovers without a marker belong to a completed pass.
	require.NoError(t, h.kv.Set(ctx, TrackerKeyPrefix+string(idB), "true", 0))
	require.NoError(t, h.kv.Set(ctx, CacheKeyPrefix+string(idB), "1", 0))

	report, err := h.coord.RunPass(ctx)
	require.NoError(t, err)

	assert.False(t, report.Resumed)
	assert.Equal(t, []model.Identifier{idB}, report.Stale, "an empty source deletes everything")
	assert.Empty(t, h.relational.Identifiers())
	assert.Empty(t, h.document.Identifiers())
}

func TestCoordinator_TrackerUnavailableAborts(t *testing.T) {
	idA := testutil.ListingID("R1", "Engineer", "1 Main St")
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("R9", "Nurse", "9 Main St")))
	h := newCoordinatorHarness(t, source, []model.Identifier{idA})
	h.kv.Fail("Exists", errors.New("redis: connection pool timeout"))

	report, err := h.coord.RunPass(context.Background())

	require.ErrorIs(t, err, ErrTrackerUnavailable)
	assert.Equal(t, model.PhaseCrawling, report.Phase)
	assert.Empty(t, h.relational.DeleteCalls())
	assert.Empty(t, h.document.DeleteCalls())
	assert.Equal(t, []model.Identifier{idA}, h.relational.Identifiers())
	assert.True(t, h.markerPresent(t))
}

func TestCoordinator_BootstrapFailureAborts(t *testing.T) {
	h := newCoordinatorHarness(t, testutil.NewFakeSource(), []model.Identifier{"A_B_C"})
	h.relational.SelectErr = errors.New("connection refused")

	report, err := h.coord.RunPass(context.Background())

	require.Error(t, err)
	assert.Equal(t, model.PhaseInit, report.Phase)
	assert.Zero(t, h.source.Calls())
	assert.Empty(t, h.relational.DeleteCalls())
}

func TestCoordinator_CanceledContextNeverSweeps(t *testing.T) {
	idA := testutil.ListingID("R1", "Engineer", "1 Main St")
	h := newCoordinatorHarness(t, testutil.NewFakeSource(), []model.Identifier{idA})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.coord.RunPass(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, model.PhaseDone, report.Phase)
	assert.Empty(t, h.relational.DeleteCalls())
	assert.Equal(t, []model.Identifier{idA}, h.document.Identifiers())
}

func TestCoordinator_DeleteGuard(t *testing.T) {
	seed := []model.Identifier{
		testutil.ListingID("R1", "A", "1"),
		testutil.ListingID("R2", "B", "2"),
		testutil.ListingID("R3", "C", "3"),
		testutil.ListingID("R4", "D", "4"),
	}
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("R1", "A", "1")))
	h := newCoordinatorHarness(t, source, seed, func(o *CoordinatorOptions) {
		o.MaxDeleteFraction = 0.5
	})

	report, err := h.coord.RunPass(context.Background())

	require.ErrorIs(t, err, ErrDeleteGuardTripped)
	assert.Equal(t, model.PhaseDone, report.Phase)
	assert.Len(t, report.Stale, 3)
	assert.Empty(t, h.relational.DeleteCalls())
	assert.Empty(t, h.document.DeleteCalls())
	assert.Len(t, h.relational.Identifiers(), 4)
	assert.Empty(t, h.kv.Snapshot(TrackerKeyPrefix), "tracker state is still reset")
}

func TestCoordinator_DeleteFailureOnOneStore(t *testing.T) {
	idB := testutil.ListingID("R2", "Analyst", "2 Main St")
	h := newCoordinatorHarness(t, testutil.NewFakeSource(), []model.Identifier{idB})
	h.document.DeleteErr = errors.New("not primary")

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.relational.Identifiers())
	assert.Equal(t, []model.Identifier{idB}, h.document.Identifiers())
	assert.Error(t, report.DeleteErrors[model.StoreDocument])
	assert.Equal(t, int64(1), report.Deleted[model.StoreRelational])
}

func TestCoordinator_BoundsConcurrentWrites(t *testing.T) {
	listings := make([]model.RawListing, 0, 12)
	for i := range 12 {
		listings = append(listings, testutil.Listing(fmt.Sprintf("R%d", i), "Eng", "Main"))
	}
	source := testutil.NewFakeSource(testutil.PageOf(1, listings...))
	h := newCoordinatorHarness(t, source, nil, func(o *CoordinatorOptions) {
		o.WriteConcurrency = 3
	})
	h.relational.InsertDelay = 5 * time.Millisecond

	report, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, report.Written, "every write finishes before the pass completes")
	assert.LessOrEqual(t, h.relational.MaxConcurrentInserts(), 3)
}

func TestCoordinator_EmitsPassMetrics(t *testing.T) {
	source := testutil.NewFakeSource(testutil.PageOf(1, testutil.Listing("X1", "Eng", "5thAve")))
	h := newCoordinatorHarness(t, source, nil)

	_, err := h.coord.RunPass(context.Background())
	require.NoError(t, err)

	calls := h.sink.Calls("pass.completed")
	require.Len(t, calls, 1)
	assert.Equal(t, "success", calls[0].Tags["result"])
	assert.Equal(t, "done", calls[0].Tags["phase"])
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSource) NextPage(ctx context.Context) (core.Page, error) {
	close(s.started)
	select {
	case <-s.release:
		return core.Page{Number: 1}, nil
	case <-ctx.Done():
		return core.Page{}, ctx.Err()
	}
}

func (s *blockingSource) Reset() {}

func TestCoordinator_RejectsConcurrentPass(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	kv := testutil.NewMemoryKV()
	store := testutil.NewFakeStore()
	tracker, err := NewLivenessTracker(LivenessTrackerOptions{KV: kv})
	require.NoError(t, err)
	cache, err := NewSessionCache(SessionCacheOptions{KV: kv})
	require.NoError(t, err)
	writer, err := NewFanoutWriter(FanoutWriterOptions{Relational: store, Document: store})
	require.NoError(t, err)
	coord, err := NewCoordinator(CoordinatorOptions{
		Source: src, Relational: store, KV: kv, Tracker: tracker, Cache: cache, Writer: writer,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, runErr := coord.RunPass(context.Background())
		done <- runErr
	}()
	<-src.started

	_, err = coord.RunPass(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(src.release)
	require.NoError(t, <-done)
}
