package metrics

import (
	"time"

	obserrors "github.com/target/jobsync/internal/observability/errors"
	"github.com/target/jobsync/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Store operations for metric tagging.
const (
	OpInsert = "insert"
	OpDelete = "delete"
)

// StoreMetric captures one store operation for metric emission.
type StoreMetric struct {
	Store    string
	Op       string
	Count    int64
	Duration time.Duration
	Err      error
}

// EmitStoreOp emits store write/delete counters and timings.
func EmitStoreOp(sink statsd.Sink, in StoreMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"store":  in.Store,
		"op":     in.Op,
		"result": ResultFor(in.Err),
	}
	if class := obserrors.Classify(in.Err); class != "" {
		tags["error_class"] = class
	}

	count := in.Count
	if count <= 0 {
		count = 1
	}
	sink.Count("store.op", count, tags)

	if in.Duration > 0 {
		sink.Timing("store.duration", in.Duration, CloneTags(tags))
	}
}

// PassMetric captures the outcome of one reconciliation pass.
type PassMetric struct {
	Phase        string
	Resumed      bool
	Pages        int
	Listings     int
	NewListings  int
	Written      int
	Stale        int
	Bootstrapped int
	Duration     time.Duration
	Err          error
}

// EmitPass emits the pass counter, timing and size gauges.
func EmitPass(sink statsd.Sink, in PassMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"phase":  in.Phase,
		"result": ResultFor(in.Err),
	}
	if in.Resumed {
		tags["resumed"] = "true"
	}
	if class := obserrors.Classify(in.Err); class != "" {
		tags["error_class"] = class
	}

	sink.Count("pass.completed", 1, tags)
	if in.Duration > 0 {
		sink.Timing("pass.duration", in.Duration, CloneTags(tags))
	}

	sink.Gauge("pass.pages", float64(in.Pages), nil)
	sink.Gauge("pass.listings", float64(in.Listings), nil)
	sink.Gauge("pass.new_listings", float64(in.NewListings), nil)
	sink.Gauge("pass.written", float64(in.Written), nil)
	sink.Gauge("pass.stale", float64(in.Stale), nil)
	sink.Gauge("pass.bootstrapped", float64(in.Bootstrapped), nil)
}

// ResultFor maps an error onto a result tag.
func ResultFor(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
