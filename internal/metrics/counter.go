package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a monotonically increasing int64, mirrored into a Prometheus
// counter. The zero value is not usable; obtain one via Registry.CounterInt64.
// A nil *Counter absorbs Add calls and reports a zero Snapshot, so callers
// never need to nil-check before incrementing.
type Counter struct {
	metric prometheus.Counter
	val    int64
}

// Add increments the counter by n (n must be >= 0, matching Prometheus
// counter semantics).
func (c *Counter) Add(n int64) {
	if c == nil {
		return
	}

	atomic.AddInt64(&c.val, n)
	c.metric.Add(float64(n))
}

// Snapshot returns the counter's current value as observed by this process,
// independent of the Prometheus collector.
func (c *Counter) Snapshot() int64 {
	if c == nil {
		return 0
	}

	return atomic.LoadInt64(&c.val)
}
