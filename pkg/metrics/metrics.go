// Prometheus text-format metrics
//
// Counters, gauges and histograms keyed by label set, gathered by a
// Registry in registration order. Series within a metric are written in
// label order so scrapes are stable.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

// Key generates a unique key for a label set
func (l Labels) Key() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

// With returns a copy of l with key set to value.
func (l Labels) With(key, value string) Labels {
	out := l.clone()
	out[key] = value
	return out
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// series is the label-keyed storage shared by every metric type.
type series[V any] struct {
	mu     sync.RWMutex
	values map[string]*V
	labels map[string]Labels
	init   func() *V
}

func (s *series[V]) get(labels Labels, create bool) *V {
	key := labels.Key()
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok || !create {
		return v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok = s.values[key]; ok {
		return v
	}
	if s.values == nil {
		s.values = make(map[string]*V)
		s.labels = make(map[string]Labels)
	}
	v = s.init()
	s.values[key] = v
	s.labels[key] = labels.clone()
	return v
}

// each visits every series in label-key order.
func (s *series[V]) each(fn func(labels Labels, v *V)) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	for _, k := range keys {
		s.mu.RLock()
		v, labels := s.values[k], s.labels[k]
		s.mu.RUnlock()
		fn(labels, v)
	}
}

func writeHeader(sb *strings.Builder, m Metric) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", m.Name(), m.Help(), m.Name(), m.Type())
}

// Counter is a monotonically increasing metric
type Counter struct {
	name, help string
	s          series[atomic.Uint64]
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	c := &Counter{name: name, help: help}
	c.s.init = func() *atomic.Uint64 { return new(atomic.Uint64) }
	return c
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the counter by delta
func (c *Counter) Add(labels Labels, delta uint64) {
	c.s.get(labels, true).Add(delta)
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) uint64 {
	if v := c.s.get(labels, false); v != nil {
		return v.Load()
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c)
	c.s.each(func(labels Labels, v *atomic.Uint64) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, labels, v.Load())
	})
}

type gaugeValue struct {
	mu    sync.Mutex
	value float64
}

// Gauge is a metric that can go up and down
type Gauge struct {
	name, help string
	s          series[gaugeValue]
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	g.s.init = func() *gaugeValue { return new(gaugeValue) }
	return g
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) {
	gv := g.s.get(labels, true)
	gv.mu.Lock()
	gv.value = value
	gv.mu.Unlock()
}

// Add adds delta to the gauge
func (g *Gauge) Add(labels Labels, delta float64) {
	gv := g.s.get(labels, true)
	gv.mu.Lock()
	gv.value += delta
	gv.mu.Unlock()
}

// Inc increments the gauge by 1
func (g *Gauge) Inc(labels Labels) { g.Add(labels, 1) }

// Dec decrements the gauge by 1
func (g *Gauge) Dec(labels Labels) { g.Add(labels, -1) }

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	gv := g.s.get(labels, false)
	if gv == nil {
		return 0
	}
	gv.mu.Lock()
	defer gv.mu.Unlock()
	return gv.value
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g)
	g.s.each(func(labels Labels, gv *gaugeValue) {
		gv.mu.Lock()
		v := gv.value
		gv.mu.Unlock()
		fmt.Fprintf(sb, "%s%s %s\n", g.name, labels, formatFloat(v))
	})
}

type histogramValue struct {
	mu      sync.Mutex
	count   uint64
	sum     float64
	buckets []uint64
}

// Histogram tracks the distribution of observations
type Histogram struct {
	name, help string
	bounds     []float64
	s          series[histogramValue]
}

// NewHistogram creates a histogram with the given upper bounds.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{name: name, help: help, bounds: bounds}
	h.s.init = func() *histogramValue {
		return &histogramValue{buckets: make([]uint64, len(bounds))}
	}
	return h
}

// DefaultBuckets returns default histogram buckets for latency metrics
func DefaultBuckets() []float64 {
	return []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
}

// ExponentialBuckets creates count buckets starting at start with factor multiplier
func ExponentialBuckets(start, factor float64, count int) []float64 {
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start
		start *= factor
	}
	return buckets
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	hv := h.s.get(labels, true)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	hv.count++
	hv.sum += value
	for i, bound := range h.bounds {
		if value <= bound {
			hv.buckets[i]++
			break
		}
	}
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(labels Labels, d time.Duration) {
	h.Observe(labels, d.Seconds())
}

// HistogramSnapshot contains a point-in-time snapshot of histogram values
type HistogramSnapshot struct {
	Count uint64
	Sum   float64
	// Buckets maps each upper bound to its cumulative count.
	Buckets map[float64]uint64
}

// Snapshot returns the histogram state for labels.
func (h *Histogram) Snapshot(labels Labels) HistogramSnapshot {
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.bounds))}
	hv := h.s.get(labels, false)
	if hv == nil {
		return snap
	}
	hv.mu.Lock()
	defer hv.mu.Unlock()
	snap.Count, snap.Sum = hv.count, hv.sum
	var cum uint64
	for i, bound := range h.bounds {
		cum += hv.buckets[i]
		snap.Buckets[bound] = cum
	}
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h)
	h.s.each(func(labels Labels, hv *histogramValue) {
		hv.mu.Lock()
		count, sum := hv.count, hv.sum
		counts := append([]uint64(nil), hv.buckets...)
		hv.mu.Unlock()

		var cum uint64
		for i, bound := range h.bounds {
			cum += counts[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, labels.With("le", formatFloat(bound)), cum)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, labels.With("le", "+Inf"), count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, labels, formatFloat(sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, labels, count)
	})
}

// Registry holds all registered metrics
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[m.Name()]; exists {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(metrics ...Metric) {
	for _, m := range metrics {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather collects all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
