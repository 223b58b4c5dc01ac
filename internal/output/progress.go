package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tradeengine/orderload/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and terminates the current line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, progressLine(p.collector.Stats(time.Since(p.start))))
		case <-p.done:
			return
		}
	}
}

func progressLine(stats metrics.Stats) string {
	line := fmt.Sprintf("\rOrders: %d | Successes: %d | Failures: %d | Rate: %.1f/s",
		stats.Total, stats.Successes, stats.Failures, stats.RequestsPerSec)
	if stats.Dropped > 0 {
		line += fmt.Sprintf(" | Dropped: %d", stats.Dropped)
	}
	if stats.Total > 0 {
		line += fmt.Sprintf(" | P99 ~%.1fms", metrics.Ms(stats.P99Latency))
	}
	return line
}
