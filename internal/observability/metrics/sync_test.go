package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobsync/internal/observability/metrics"
	"github.com/target/jobsync/internal/testutil"
)

func TestEmitStoreOp(t *testing.T) {
	t.Run("success defaults count to one", func(t *testing.T) {
		sink := &testutil.RecordingSink{}
		metrics.EmitStoreOp(sink, metrics.StoreMetric{
			Store:    "relational",
			Op:       metrics.OpInsert,
			Duration: 3 * time.Millisecond,
		})

		ops := sink.Calls("store.op")
		require.Len(t, ops, 1)
		assert.Equal(t, float64(1), ops[0].Value)
		assert.Equal(t, map[string]string{"store": "relational", "op": "insert", "result": "success"}, ops[0].Tags)
		assert.Len(t, sink.Calls("store.duration"), 1)
	})

	t.Run("failure carries error class", func(t *testing.T) {
		sink := &testutil.RecordingSink{}
		metrics.EmitStoreOp(sink, metrics.StoreMetric{
			Store: "document",
			Op:    metrics.OpDelete,
			Count: 40,
			Err:   fmt.Errorf("delete batch: %w", context.DeadlineExceeded),
		})

		ops := sink.Calls("store.op")
		require.Len(t, ops, 1)
		assert.Equal(t, float64(40), ops[0].Value)
		assert.Equal(t, "error", ops[0].Tags["result"])
		assert.Equal(t, "timeout", ops[0].Tags["error_class"])
		assert.Empty(t, sink.Calls("store.duration"), "zero duration is not timed")
	})

	t.Run("nil sink", func(t *testing.T) {
		assert.NotPanics(t, func() { metrics.EmitStoreOp(nil, metrics.StoreMetric{}) })
	})
}

func TestEmitPass(t *testing.T) {
	sink := &testutil.RecordingSink{}
	metrics.EmitPass(sink, metrics.PassMetric{
		Phase:        "done",
		Resumed:      true,
		Pages:        4,
		Listings:     80,
		NewListings:  5,
		Written:      5,
		Stale:        2,
		Bootstrapped: 77,
		Duration:     time.Second,
	})

	completed := sink.Calls("pass.completed")
	require.Len(t, completed, 1)
	assert.Equal(t, map[string]string{"phase": "done", "result": "success", "resumed": "true"}, completed[0].Tags)

	for name, want := range map[string]float64{
		"pass.pages":        4,
		"pass.listings":     80,
		"pass.new_listings": 5,
		"pass.written":      5,
		"pass.stale":        2,
		"pass.bootstrapped": 77,
	} {
		calls := sink.Calls(name)
		require.Len(t, calls, 1, name)
		assert.Equal(t, want, calls[0].Value, name)
	}
}

func TestResultFor(t *testing.T) {
	assert.Equal(t, metrics.ResultSuccess, metrics.ResultFor(nil))
	assert.Equal(t, metrics.ResultError, metrics.ResultFor(errors.New("x")))
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, metrics.CloneTags(nil))

	src := map[string]string{"a": "1", "": "skip"}
	cp := metrics.CloneTags(src)
	cp["a"] = "2"
	assert.Equal(t, "1", src["a"])
	assert.NotContains(t, cp, "")
}
