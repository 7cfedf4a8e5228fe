package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// MetricType is the TYPE written for a metric family.
type MetricType string

// Metric types.
const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Sample is one exposed line.
type Sample struct {
	Name   string
	Labels []Label
	Value  float64
}

// Label is a name/value pair on a sample.
type Label struct {
	Name, Value string
}

// Metric is a family the registry can expose.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect() []Sample
}

// family holds one float per label combination.
type family struct {
	name   string
	help   string
	labels []string

	mu     sync.Mutex
	values map[string]*Value
	order  []string
}

func newFamily(name, help string, labels []string) *family {
	return &family{name: name, help: help, labels: labels, values: make(map[string]*Value)}
}

func (f *family) with(values ...string) *Value {
	if len(values) != len(f.labels) {
		panic(fmt.Sprintf("metrics: %s expects %d label values, got %d", f.name, len(f.labels), len(values)))
	}
	key := strings.Join(values, "\x00")

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		v = &Value{labels: slices.Clone(values)}
		f.values[key] = v
		f.order = append(f.order, key)
	}
	return v
}

func (f *family) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.values)
	f.order = nil
}

func (f *family) collect() []Sample {
	f.mu.Lock()
	keys := slices.Clone(f.order)
	slices.Sort(keys)
	vals := make([]*Value, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, f.values[k])
	}
	f.mu.Unlock()

	out := make([]Sample, 0, len(vals))
	for _, v := range vals {
		labels := make([]Label, len(f.labels))
		for i, n := range f.labels {
			labels[i] = Label{Name: n, Value: v.labels[i]}
		}
		out = append(out, Sample{Name: f.name, Labels: labels, Value: v.Get()})
	}
	return out
}

// Value is the float behind one label combination.
type Value struct {
	labels []string
	mu     sync.Mutex
	v      float64
}

// Add adds delta.
func (v *Value) Add(delta float64) {
	v.mu.Lock()
	v.v += delta
	v.mu.Unlock()
}

// Inc adds one.
func (v *Value) Inc() { v.Add(1) }

// Set replaces the value.
func (v *Value) Set(x float64) {
	v.mu.Lock()
	v.v = x
	v.mu.Unlock()
}

// Get returns the current value.
func (v *Value) Get() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.v
}

// Counter is a monotonically increasing metric.
type Counter struct{ f *family }

func (c *Counter) Name() string      { return c.f.name }
func (c *Counter) Help() string      { return c.f.help }
func (c *Counter) Type() MetricType  { return TypeCounter }
func (c *Counter) Collect() []Sample { return c.f.collect() }

// With returns the counter for the given label values.
func (c *Counter) With(values ...string) *CounterValue {
	return &CounterValue{v: c.f.with(values...)}
}

// CounterValue is one labelled counter.
type CounterValue struct{ v *Value }

// Inc adds one.
func (c *CounterValue) Inc() { c.v.Inc() }

// Add adds a non-negative delta.
func (c *CounterValue) Add(delta float64) {
	if delta < 0 {
		return
	}
	c.v.Add(delta)
}

// Get returns the current value.
func (c *CounterValue) Get() float64 { return c.v.Get() }

// Gauge is a metric that can go up and down.
type Gauge struct{ f *family }

func (g *Gauge) Name() string      { return g.f.name }
func (g *Gauge) Help() string      { return g.f.help }
func (g *Gauge) Type() MetricType  { return TypeGauge }
func (g *Gauge) Collect() []Sample { return g.f.collect() }

// With returns the gauge for the given label values.
func (g *Gauge) With(values ...string) *Value { return g.f.with(values...) }

// Reset drops every label combination.
func (g *Gauge) Reset() { g.f.reset() }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	buckets []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records one value.
func (h *Histogram) Observe(x float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.buckets {
		if x <= b {
			h.counts[i]++
		}
	}
	h.sum += x
	h.count++
}

// Collect implements Metric.
func (h *Histogram) Collect() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sample, 0, len(h.buckets)+3)
	for i, b := range h.buckets {
		out = append(out, Sample{
			Name:   h.name + "_bucket",
			Labels: []Label{{Name: "le", Value: formatFloat(b)}},
			Value:  float64(h.counts[i]),
		})
	}
	out = append(out,
		Sample{Name: h.name + "_bucket", Labels: []Label{{Name: "le", Value: "+Inf"}}, Value: float64(h.count)},
		Sample{Name: h.name + "_sum", Value: h.sum},
		Sample{Name: h.name + "_count", Value: float64(h.count)},
	)
	return out
}

// DefaultBuckets suit durations from milliseconds to tens of seconds, which
// covers compiles that wait on certbot.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Registry holds the metrics exposed by Handler.
type Registry struct {
	mu         sync.RWMutex
	metrics    []Metric
	names      map[string]struct{}
	collectors []func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{f: newFamily(name, help, labels)}
	r.register(c)
	return c
}

// NewGauge registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{f: newFamily(name, help, labels)}
	r.register(g)
	return g
}

// NewHistogram registers a histogram. Nil buckets select DefaultBuckets.
func (r *Registry) NewHistogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	h := &Histogram{name: name, help: help, buckets: slices.Sorted(slices.Values(buckets))}
	h.counts = make([]uint64, len(h.buckets))
	r.register(h)
	return h
}

// OnCollect registers fn to run before every exposition.
func (r *Registry) OnCollect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, fn)
}

// register panics on duplicate names, which would produce invalid output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic("metrics: duplicate metric " + m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteTo writes every metric in registration order.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	metrics := slices.Clone(r.metrics)
	collectors := slices.Clone(r.collectors)
	r.mu.RUnlock()

	for _, fn := range collectors {
		fn()
	}

	cw := &countingWriter{w: w}
	for _, m := range metrics {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		fmt.Fprintf(cw, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
		fmt.Fprintf(cw, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			writeSample(cw, s)
		}
	}
	return cw.n, cw.err
}

// Handler serves the registry at any path.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func writeSample(w io.Writer, s Sample) {
	if len(s.Labels) == 0 {
		fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
		return
	}
	parts := make([]string, len(s.Labels))
	for i, l := range s.Labels {
		parts[i] = l.Name + `="` + escapeLabelValue(l.Value) + `"`
	}
	fmt.Fprintf(w, "%s{%s} %s\n", s.Name, strings.Join(parts, ","), formatFloat(s.Value))
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
