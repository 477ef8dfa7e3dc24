package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Gauge is a value that can go up or down, mirrored into a Prometheus gauge.
// Obtain one via Registry.GaugeInt64. A nil *Gauge absorbs Set/Add calls and
// reports a zero Snapshot.
type Gauge struct {
	metric prometheus.Gauge
	name   string
	labels map[string]string

	mu  sync.Mutex
	val int64
}

// Set assigns the gauge's value.
func (g *Gauge) Set(n int64) {
	if g == nil {
		return
	}

	g.mu.Lock()
	g.val = n
	g.mu.Unlock()

	g.metric.Set(float64(n))
}

// Add adjusts the gauge's value by n (which may be negative).
func (g *Gauge) Add(n int64) {
	if g == nil {
		return
	}

	g.mu.Lock()
	g.val += n
	g.mu.Unlock()

	g.metric.Add(float64(n))
}

// Snapshot returns the gauge's current value as observed by this process. If
// reset is true, the local snapshot is zeroed (the Prometheus-visible value
// is left untouched).
func (g *Gauge) Snapshot(reset bool) int64 {
	if g == nil {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	v := g.val
	if reset {
		g.val = 0
	}

	return v
}
