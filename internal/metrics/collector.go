package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector keeps live running statistics while a run is in flight.
type Collector struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	dropped    int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	start      time.Time
}

// Stats is a point-in-time view of a Collector. Percentiles are HDR
// approximations.
type Stats struct {
	Total          int64
	Successes      int64
	Failures       int64
	Dropped        int64
	MinLatency     time.Duration
	MaxLatency     time.Duration
	MeanLatency    time.Duration
	P50Latency     time.Duration
	P90Latency     time.Duration
	P99Latency     time.Duration
	Duration       time.Duration
	RequestsPerSec float64
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:  h,
		start: time.Now(),
	}
}

// Start resets the reference time used for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Observe implements Observer.
func (c *Collector) Observe(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := s.Latency
	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if s.Outcome == Success {
		c.successes++
	} else {
		c.failures++
	}
}

// ObserveDropped implements DropObserver.
func (c *Collector) ObserveDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

// Stats returns the current aggregate. A zero elapsed uses the time since Start.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elapsed <= 0 {
		elapsed = time.Since(c.start)
	}

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Dropped:    c.dropped,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		Duration:   elapsed,
	}
	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}
	return stats
}
