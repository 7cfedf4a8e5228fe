package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// PIDSource reports the pid of each supervised child by name.
type PIDSource func() map[string]int

// ProcessCollector publishes resource usage of the supervised children.
// Values are read from the OS on every scrape.
type ProcessCollector struct {
	pids    PIDSource
	timeout time.Duration

	rss     *Gauge
	cpu     *Gauge
	threads *Gauge
	up      *Gauge
}

// NewProcessCollector registers the child process gauges and hooks them
// into the registry's collection.
func NewProcessCollector(r *Registry, pids PIDSource) *ProcessCollector {
	pc := &ProcessCollector{
		pids:    pids,
		timeout: 2 * time.Second,
		rss: r.NewGauge(
			"reflector_child_resident_bytes",
			"Resident memory of a supervised process",
			"child",
		),
		cpu: r.NewGauge(
			"reflector_child_cpu_percent",
			"CPU usage of a supervised process since it started",
			"child",
		),
		threads: r.NewGauge(
			"reflector_child_threads",
			"Thread count of a supervised process",
			"child",
		),
		up: r.NewGauge(
			"reflector_child_up",
			"Whether a supervised process is running",
			"child",
		),
	}
	r.OnCollect(pc.Collect)
	return pc
}

// Collect refreshes the gauges. A child whose process cannot be read is
// reported as down and its other gauges are dropped.
func (pc *ProcessCollector) Collect() {
	ctx, cancel := context.WithTimeout(context.Background(), pc.timeout)
	defer cancel()

	pc.rss.Reset()
	pc.cpu.Reset()
	pc.threads.Reset()
	pc.up.Reset()

	for name, pid := range pc.pids() {
		if pid <= 0 {
			pc.up.With(name).Set(0)
			continue
		}
		p, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			pc.up.With(name).Set(0)
			continue
		}
		pc.up.With(name).Set(1)
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
			pc.rss.With(name).Set(float64(mem.RSS))
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			pc.cpu.With(name).Set(pct)
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			pc.threads.With(name).Set(float64(n))
		}
	}
}
