package testutil

import (
	"sync"
	"time"

	"github.com/target/jobsync/internal/observability/statsd"
)

// MetricCall is one recorded sink call.
type MetricCall struct {
	Kind  string // count, gauge or timing
	Name  string
	Value float64
	Tags  map[string]string
}

// RecordingSink is a statsd.Sink that records every call.
type RecordingSink struct {
	mu    sync.Mutex
	calls []MetricCall
}

var _ statsd.Sink = (*RecordingSink)(nil)

// Count implements statsd.Sink.
func (s *RecordingSink) Count(name string, value int64, tags map[string]string) {
	s.record(MetricCall{Kind: "count", Name: name, Value: float64(value), Tags: tags})
}

// Gauge implements statsd.Sink.
func (s *RecordingSink) Gauge(name string, value float64, tags map[string]string) {
	s.record(MetricCall{Kind: "gauge", Name: name, Value: value, Tags: tags})
}

// Timing implements statsd.Sink.
func (s *RecordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.record(MetricCall{Kind: "timing", Name: name, Value: float64(value), Tags: tags})
}

// Calls returns the calls recorded under name.
func (s *RecordingSink) Calls(name string) []MetricCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MetricCall
	for _, c := range s.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (s *RecordingSink) record(c MetricCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}
