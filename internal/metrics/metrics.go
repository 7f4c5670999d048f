// Package metrics samples per-pid CPU/memory usage for managed processes and
// exports them as prometheus gauges. Grounded on
// original_source/crates/oxidepmd/src/supervisor.rs's spawn_metrics_collector
// (sysinfo-based 2s refresh loop, per-pid cpu_usage/memory, memory-limit
// restart scheduling) and on the teacher's
// internal/metrics/process_metrics.go (gopsutil sampling, GaugeVec shape,
// collector lifecycle), narrowed from the teacher's process-name/instance
// history model to a flat per-pid sampler feeding appspec.RunState's
// CPUPercent/MemoryBytes, since the registry's own metrics table already
// provides history (see internal/registry.InsertMetric/TailMetrics).
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one CPU/memory reading for a single running app.
type Sample struct {
	AppID       int64
	CPUPercent  float64
	MemoryBytes uint64
	SampledAt   time.Time
}

// Target describes one process to sample.
type Target struct {
	AppID int64
	Name  string
	PID   int
}

// Collector periodically samples a set of target pids and exposes their
// CPU/RSS usage as prometheus gauges labeled by app name.
type Collector struct {
	interval time.Duration

	cpuGauge *prometheus.GaugeVec
	memGauge *prometheus.GaugeVec

	mu      sync.Mutex
	handles map[int64]*process.Process
}

// NewCollector builds a Collector sampling every interval (defaulting to 2s,
// matching the original daemon's metrics collector tick).
func NewCollector(interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Collector{
		interval: interval,
		cpuGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oxidepm",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage for a managed process.",
		}, []string{"app_name"}),
		memGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oxidepm",
			Subsystem: "process",
			Name:      "memory_bytes",
			Help:      "Resident memory usage in bytes for a managed process.",
		}, []string{"app_name"}),
		handles: make(map[int64]*process.Process),
	}
}

// Register registers the collector's gauges with r. Safe to call once at
// startup; AlreadyRegisteredError is treated as success.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, g := range []prometheus.Collector{c.cpuGauge, c.memGauge} {
		if err := r.Register(g); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Sample takes one reading for each target, updating the prometheus gauges
// and returning the raw samples for the caller to persist (RunState/registry).
// Targets with no pid (PID <= 0) are skipped; cached process handles of apps
// absent from targets are dropped, while their gauge series stay until Forget.
func (c *Collector) Sample(targets []Target) []Sample {
	now := time.Now()
	seen := make(map[int64]bool, len(targets))
	samples := make([]Sample, 0, len(targets))

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range targets {
		if t.PID <= 0 {
			continue
		}
		seen[t.AppID] = true

		proc, ok := c.handles[t.AppID]
		if !ok || int(proc.Pid) != t.PID {
			p, err := process.NewProcess(int32(t.PID))
			if err != nil {
				slog.Debug("metrics: cannot open process handle", "app_id", t.AppID, "pid", t.PID, "error", err)
				continue
			}
			proc = p
			c.handles[t.AppID] = proc
		}

		cpuPercent, err := proc.CPUPercent()
		if err != nil {
			slog.Debug("metrics: cpu sample failed", "app_id", t.AppID, "error", err)
			cpuPercent = 0
		}

		var memBytes uint64
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			memBytes = mem.RSS
		} else {
			slog.Debug("metrics: memory sample failed", "app_id", t.AppID, "error", err)
		}

		c.cpuGauge.WithLabelValues(t.Name).Set(cpuPercent)
		c.memGauge.WithLabelValues(t.Name).Set(float64(memBytes))

		samples = append(samples, Sample{
			AppID:       t.AppID,
			CPUPercent:  cpuPercent,
			MemoryBytes: memBytes,
			SampledAt:   now,
		})
	}

	for appID := range c.handles {
		if !seen[appID] {
			delete(c.handles, appID)
		}
	}

	return samples
}

// Forget drops cached process handles and gauge series for appName/appID,
// called when an app is stopped or removed so stale series don't linger.
func (c *Collector) Forget(appID int64, appName string) {
	c.mu.Lock()
	delete(c.handles, appID)
	c.mu.Unlock()
	c.cpuGauge.DeleteLabelValues(appName)
	c.memGauge.DeleteLabelValues(appName)
}

// Run starts a ticking loop that calls sample(collector) every interval until
// ctx is canceled. The caller supplies targetsFn to avoid this package
// depending on the supervisor's process map type.
func (c *Collector) Run(ctx context.Context, targetsFn func() []Target, onSample func([]Sample)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples := c.Sample(targetsFn())
			if onSample != nil && len(samples) > 0 {
				onSample(samples)
			}
		}
	}
}
