package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/jobsync/internal/domain/model"
	"github.com/target/jobsync/internal/mocks"
	"github.com/target/jobsync/internal/testutil"
)

func newTestTracker(t *testing.T, kv *testutil.MemoryKV) *LivenessTracker {
	t.Helper()
	tracker, err := NewLivenessTracker(LivenessTrackerOptions{KV: kv, BatchSize: 2})
	require.NoError(t, err)
	return tracker
}

func TestNewLivenessTracker_RequiresKV(t *testing.T) {
	_, err := NewLivenessTracker(LivenessTrackerOptions{})
	assert.Error(t, err)
}

func TestLivenessTracker_Bootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("creates not-live entries in batches", func(t *testing.T) {
		kv := testutil.NewMemoryKV()
		tracker := newTestTracker(t, kv)

		created, err := tracker.Bootstrap(ctx, []model.Identifier{"A", "B", "C"})
		require.NoError(t, err)

		assert.Equal(t, 3, created)
		assert.Equal(t, map[string]string{
			"job_identifiers:A": "false",
			"job_identifiers:B": "false",
			"job_identifiers:C": "false",
		}, kv.Snapshot(TrackerKeyPrefix))
		assert.Equal(t, 2, kv.Calls("SetManyIfNotExists"), "batch size 2 should need two round trips")
	})

	t.Run("is idempotent and never clobbers live entries", func(t *testing.T) {
		kv := testutil.NewMemoryKV()
		tracker := newTestTracker(t, kv)

		_, err := tracker.Bootstrap(ctx, []model.Identifier{"A", "B"})
		require.NoError(t, err)
		_, err = tracker.MarkLive(ctx, "A")
		require.NoError(t, err)

		created, err := tracker.Bootstrap(ctx, []model.Identifier{"A", "B"})
		require.NoError(t, err)

		assert.Zero(t, created)
		assert.Equal(t, "true", kv.Snapshot(TrackerKeyPrefix)["job_identifiers:A"])
		assert.Equal(t, "false", kv.Snapshot(TrackerKeyPrefix)["job_identifiers:B"])
	})

	t.Run("empty set is a no-op", func(t *testing.T) {
		kv := testutil.NewMemoryKV()
		tracker := newTestTracker(t, kv)

		created, err := tracker.Bootstrap(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Zero(t, kv.Calls("SetManyIfNotExists"))
	})
}

func TestLivenessTracker_MarkLive(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	tracker := newTestTracker(t, kv)
	_, err := tracker.Bootstrap(ctx, []model.Identifier{"A"})
	require.NoError(t, err)

	ok, err := tracker.MarkLive(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tracker.MarkLive(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok, "unknown identifiers are not created by MarkLive")

	tracked, err := tracker.IsTracked(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestLivenessTracker_InsertLive(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	tracker := newTestTracker(t, kv)

	require.NoError(t, tracker.InsertLive(ctx, "X1_Eng_5thAve"))

	tracked, err := tracker.IsTracked(ctx, "X1_Eng_5thAve")
	require.NoError(t, err)
	assert.True(t, tracked)
	assert.Equal(t, "true", kv.Snapshot(TrackerKeyPrefix)["job_identifiers:X1_Eng_5thAve"])
}

func TestLivenessTracker_Sweep(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	tracker := newTestTracker(t, kv)

	_, err := tracker.Bootstrap(ctx, []model.Identifier{"D", "A", "C", "B"})
	require.NoError(t, err)
	_, err = tracker.MarkLive(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, tracker.InsertLive(ctx, "E"))

	stale, err := tracker.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, []model.Identifier{"B", "C", "D"}, stale, "stale identifiers are returned sorted")
	assert.Equal(t, map[string]string{
		"job_identifiers:A": "true",
		"job_identifiers:E": "true",
	}, kv.Snapshot(TrackerKeyPrefix), "swept entries are removed, live ones stay")

	stale, err = tracker.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestLivenessTracker_SweepIgnoresOtherNamespaces(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	tracker := newTestTracker(t, kv)
	require.NoError(t, kv.Set(ctx, CacheKeyPrefix+"B", "false", 0))

	stale, err := tracker.Sweep(ctx)
	require.NoError(t, err)

	assert.Empty(t, stale)
	assert.Len(t, kv.Snapshot(CacheKeyPrefix), 1)
}

func TestLivenessTracker_ResetAndCount(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemoryKV()
	tracker := newTestTracker(t, kv)

	_, err := tracker.Bootstrap(ctx, []model.Identifier{"A", "B", "C"})
	require.NoError(t, err)
	_, err = tracker.MarkLive(ctx, "B")
	require.NoError(t, err)

	counts, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, TrackerCounts{Live: 1, NotLive: 2}, counts)
	assert.Equal(t, 3, counts.Total())

	deleted, err := tracker.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.Empty(t, kv.Snapshot(TrackerKeyPrefix))
}

func TestLivenessTracker_ErrorsAreTrackerUnavailable(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	tests := []struct {
		name string
		op   string
		call func(*LivenessTracker) error
	}{
		{
			name: "bootstrap",
			op:   "SetManyIfNotExists",
			call: func(tr *LivenessTracker) error {
				_, err := tr.Bootstrap(ctx, []model.Identifier{"A"})
				return err
			},
		},
		{
			name: "mark live",
			op:   "SetIfExists",
			call: func(tr *LivenessTracker) error {
				_, err := tr.MarkLive(ctx, "A")
				return err
			},
		},
		{
			name: "insert live",
			op:   "Set",
			call: func(tr *LivenessTracker) error { return tr.InsertLive(ctx, "A") },
		},
		{
			name: "is tracked",
			op:   "Exists",
			call: func(tr *LivenessTracker) error {
				_, err := tr.IsTracked(ctx, "A")
				return err
			},
		},
		{
			name: "sweep",
			op:   "ScanPrefix",
			call: func(tr *LivenessTracker) error {
				_, err := tr.Sweep(ctx)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := testutil.NewMemoryKV()
			kv.Fail(tt.op, boom)
			tracker := newTestTracker(t, kv)

			err := tt.call(tracker)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTrackerUnavailable)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestLivenessTracker_SweepKeepsEntriesWhenDeleteFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	kv := mocks.NewMockKeyValueStore(ctrl)
	ctx := context.Background()

	kv.EXPECT().
		ScanPrefix(gomock.Any(), TrackerKeyPrefix, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, fn func([]string) error) error {
			return fn([]string{"job_identifiers:A", "job_identifiers:B"})
		})
	kv.EXPECT().
		MGet(gomock.Any(), []string{"job_identifiers:A", "job_identifiers:B"}).
		Return(map[string]string{"job_identifiers:A": "false", "job_identifiers:B": "true"}, nil)
	kv.EXPECT().
		Delete(gomock.Any(), "job_identifiers:A").
		Return(int64(0), errors.New("READONLY You can't write against a read only replica"))

	tracker, err := NewLivenessTracker(LivenessTrackerOptions{KV: kv})
	require.NoError(t, err)

	stale, err := tracker.Sweep(ctx)

	require.ErrorIs(t, err, ErrTrackerUnavailable)
	assert.Nil(t, stale, "no identifiers are reported when their entries could not be removed")
}
