// Package metrics provides lightweight, nil-safe Prometheus-backed counters
// and gauges used to instrument the allocator engine and replay driver.
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "allocsim"

// Registry owns the counters and gauges created through it, each backed by a
// prometheus.CounterVec/GaugeVec registered with prometheus.DefaultRegisterer.
//
// A nil *Registry is valid everywhere a *Registry is accepted: every method
// degrades to a no-op (or returns a nil Counter/Gauge, which is itself
// nil-safe), so instrumentation can be threaded through code that may or may
// not have metrics configured without a branch at every call site.
type Registry struct {
	mu sync.Mutex

	counterVecs map[string]*prometheus.CounterVec
	gaugeVecs   map[string]*prometheus.GaugeVec

	counters map[string]*Counter
	gauges   map[string]*Gauge
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		counterVecs: map[string]*prometheus.CounterVec{},
		gaugeVecs:   map[string]*prometheus.GaugeVec{},
		counters:    map[string]*Counter{},
		gauges:      map[string]*Gauge{},
	}
}

func metricKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var sb strings.Builder

	sb.WriteString(name)

	for _, k := range keys {
		sb.WriteByte('\x00')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}

	return sb.String()
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

func registerOrReuseCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(opts, labels)

	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok { //nolint:errorlint
			return are.ExistingCollector.(*prometheus.CounterVec) //nolint:forcetypeassert
		}
	}

	return vec
}

func registerOrReuseGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	vec := prometheus.NewGaugeVec(opts, labels)

	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok { //nolint:errorlint
			return are.ExistingCollector.(*prometheus.GaugeVec) //nolint:forcetypeassert
		}
	}

	return vec
}

// CounterInt64 returns the counter identified by (name, labels), creating it
// and its backing CounterVec on first use. Calling it again with the same
// name and labels returns the same *Counter.
func (r *Registry) CounterInt64(name, help string, labels map[string]string) *Counter {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if c, ok := r.counters[key]; ok {
		return c
	}

	vec, ok := r.counterVecs[name]
	if !ok {
		vec = registerOrReuseCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name + "_total",
			Help:      help,
		}, labelNames(labels))
		r.counterVecs[name] = vec
	}

	c := &Counter{metric: vec.With(labels)}
	r.counters[key] = c

	return c
}

// GaugeInt64 returns the gauge identified by (name, labels), creating it and
// its backing GaugeVec on first use.
func (r *Registry) GaugeInt64(name, help string, labels map[string]string) *Gauge {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	if g, ok := r.gauges[key]; ok {
		return g
	}

	vec, ok := r.gaugeVecs[name]
	if !ok {
		vec = registerOrReuseGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labelNames(labels))
		r.gaugeVecs[name] = vec
	}

	g := &Gauge{metric: vec.With(labels), name: name, labels: labels}
	r.gauges[key] = g

	return g
}

// Gauge is a convenience alias kept for call sites that want the
// teacher-style short name; identical to GaugeInt64.
func (r *Registry) Gauge(name, help string, labels map[string]string) *Gauge {
	return r.GaugeInt64(name, help, labels)
}

// HasGauge reports whether a gauge with the given name and labels currently
// exists in the registry.
func (r *Registry) HasGauge(name string, labels map[string]string) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.gauges[metricKey(name, labels)]

	return ok
}

// RemoveGauge deletes g's time series from its backing GaugeVec and forgets
// it, so a subsequent GaugeInt64 call with the same name/labels creates a
// fresh one.
func (r *Registry) RemoveGauge(g *Gauge) {
	if r == nil || g == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, existing := range r.gauges {
		if existing == g {
			delete(r.gauges, key)

			if vec, ok := r.gaugeVecs[g.name]; ok {
				vec.Delete(g.labels)
			}

			return
		}
	}
}
