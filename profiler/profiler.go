// Package profiler - Periodic runtime and pipeline timing reports.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// MetricsCollector supplies gauge values sampled on every tick.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler samples memory and goroutine counts, aggregates operation
// timings and application metrics, and logs a summary every report interval.
// All methods are safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         zerolog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats    runtime.MemStats
	goroutines  int
	lastGCCount uint32

	metrics    map[string]*MetricTracker
	collectors []MetricsCollector
	operations map[string]*TimeTracker
}

// MetricTracker keeps a sliding window of metric values.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

func (t *MetricTracker) add(value float64, limit int) {
	if t.count == 0 || value < t.min {
		t.min = value
	}
	if t.count == 0 || value > t.max {
		t.max = value
	}
	t.values = append(t.values, value)
	t.sum += value
	if len(t.values) > limit {
		t.sum -= t.values[0]
		t.values = t.values[1:]
	}
	t.count++
}

// TimeTracker keeps a sliding window of operation durations.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, limit int) {
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if t.count == 0 || d > t.max {
		t.max = d
	}
	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > limit {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log reports (default: 10s)
	ReportInterval time.Duration
	// SampleInterval specifies how often to collect samples (default: 500ms)
	SampleInterval time.Duration
	// MaxSamples bounds the sliding window of every tracker (default: 600)
	MaxSamples int
	// Logger receives the reports.
	Logger zerolog.Logger
}

// NewRuntimeProfiler creates a profiler. It does nothing until Start.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 500 * time.Millisecond
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		startTime:      time.Now(),
		metrics:        make(map[string]*MetricTracker),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start launches the sampling and reporting goroutines. Calling it on a
// running profiler does nothing.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.startTime = time.Now()

	ctx, rp.cancel = context.WithCancel(ctx)

	rp.wg.Add(2)
	go rp.loop(ctx, rp.sampleInterval, rp.sample)
	go rp.loop(ctx, rp.reportInterval, rp.report)
}

// Stop cancels the goroutines and waits for them to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	cancel := rp.cancel
	rp.mu.Unlock()

	cancel()
	rp.wg.Wait()
}

func (rp *RuntimeProfiler) loop(ctx context.Context, every time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// AddMetricsCollector registers a collector sampled on every tick.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records one value of a named metric.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, ok := rp.metrics[name]
	if !ok {
		tracker = &MetricTracker{}
		rp.metrics[name] = tracker
	}
	tracker.add(value, rp.maxSamples)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// Example:
//
// ```go
//
//	defer profiler.StartOperation("detect")()
//
// ```
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records one completed operation.
func (rp *RuntimeProfiler) RecordDuration(name string, d time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &TimeTracker{}
		rp.operations[name] = tracker
	}
	tracker.add(d, rp.maxSamples)
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	// Collectors may take their own locks; call them outside ours.
	collected := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		collected = append(collected, c.CollectMetrics())
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.memStats = mem
	rp.goroutines = runtime.NumGoroutine()
	for _, metrics := range collected {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
}

func (rp *RuntimeProfiler) report() {
	snap := rp.Snapshot()

	rp.mu.Lock()
	newGC := rp.memStats.NumGC - rp.lastGCCount
	rp.lastGCCount = rp.memStats.NumGC
	rp.mu.Unlock()

	ev := rp.logger.Info().
		Dur("uptime", snap.Uptime.Truncate(time.Millisecond)).
		Int("goroutines", snap.Goroutines).
		Str("heap", humanize.Bytes(snap.HeapAlloc)).
		Str("sys", humanize.Bytes(snap.Sys)).
		Uint32("gc_new", newGC)

	for _, op := range snap.Operations {
		ev = ev.Dict(op.Name, zerolog.Dict().
			Dur("avg", op.Avg.Truncate(time.Microsecond)).
			Dur("min", op.Min.Truncate(time.Microsecond)).
			Dur("max", op.Max.Truncate(time.Microsecond)).
			Int64("count", op.Count))
	}
	for _, m := range snap.Metrics {
		ev = ev.Dict(m.Name, zerolog.Dict().
			Float64("avg", m.Avg).
			Float64("min", m.Min).
			Float64("max", m.Max).
			Float64("last", m.Last))
	}
	ev.Msg("runtime profile")
}

// OperationStats summarises one timed operation.
type OperationStats struct {
	Name  string        `json:"name"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// MetricStats summarises one metric.
type MetricStats struct {
	Name  string  `json:"name"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Last  float64 `json:"last"`
	Count int64   `json:"count"`
}

// Snapshot is a point-in-time copy of the profiler state.
type Snapshot struct {
	Uptime     time.Duration    `json:"uptime"`
	Goroutines int              `json:"goroutines"`
	HeapAlloc  uint64           `json:"heapAlloc"`
	Sys        uint64           `json:"sys"`
	NumGC      uint32           `json:"numGC"`
	Operations []OperationStats `json:"operations"`
	Metrics    []MetricStats    `json:"metrics"`
}

// Snapshot returns the current statistics, entries sorted by name.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	snap := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: rp.goroutines,
		HeapAlloc:  rp.memStats.HeapAlloc,
		Sys:        rp.memStats.Sys,
		NumGC:      rp.memStats.NumGC,
	}

	for name, t := range rp.operations {
		if len(t.durations) == 0 {
			continue
		}
		snap.Operations = append(snap.Operations, OperationStats{
			Name:  name,
			Avg:   t.total / time.Duration(len(t.durations)),
			Min:   t.min,
			Max:   t.max,
			Count: t.count,
		})
	}
	for name, t := range rp.metrics {
		if len(t.values) == 0 {
			continue
		}
		snap.Metrics = append(snap.Metrics, MetricStats{
			Name:  name,
			Avg:   t.sum / float64(len(t.values)),
			Min:   t.min,
			Max:   t.max,
			Last:  t.values[len(t.values)-1],
			Count: t.count,
		})
	}

	sort.Slice(snap.Operations, func(i, j int) bool { return snap.Operations[i].Name < snap.Operations[j].Name })
	sort.Slice(snap.Metrics, func(i, j int) bool { return snap.Metrics[i].Name < snap.Metrics[j].Name })
	return snap
}
