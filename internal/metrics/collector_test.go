package metrics_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tradeengine/orderload/internal/metrics"
)

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()
	for _, ms := range []int{10, 20, 30, 40, 50} {
		c.Observe(metrics.Sample{Latency: time.Duration(ms) * time.Millisecond, Outcome: metrics.Success})
	}
	c.Observe(metrics.Sample{Latency: 30 * time.Millisecond, Outcome: metrics.Failure})
	c.ObserveDropped()

	stats := c.Stats(time.Second)
	if stats.Total != 6 || stats.Successes != 5 || stats.Failures != 1 || stats.Dropped != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("MinLatency = %s, want 10ms", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("MaxLatency = %s, want 50ms", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("MeanLatency = %s, want 30ms", stats.MeanLatency)
	}
	if stats.RequestsPerSec != 6 {
		t.Errorf("RequestsPerSec = %v, want 6", stats.RequestsPerSec)
	}
	if stats.P50Latency < 29*time.Millisecond || stats.P50Latency > 31*time.Millisecond {
		t.Errorf("P50Latency = %s, want ~30ms", stats.P50Latency)
	}
}

func TestCollectorConcurrentObserve(t *testing.T) {
	c := metrics.NewCollector()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Observe(metrics.Sample{Latency: time.Millisecond})
			}
		}()
	}
	wg.Wait()
	if got := c.Stats(time.Second).Total; got != 4000 {
		t.Fatalf("Total = %d, want 4000", got)
	}
}

func TestRecorderNotifiesObservers(t *testing.T) {
	collector := metrics.NewCollector()
	exporter := metrics.NewExporter()
	rec := metrics.NewRecorder(collector, exporter, nil)

	rec.Record(metrics.Sample{Latency: 2 * time.Millisecond, Outcome: metrics.Success})
	rec.Record(metrics.Sample{Latency: 4 * time.Millisecond, Outcome: metrics.Failure})
	rec.RecordDropped()

	if rec.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rec.Len())
	}
	samples := rec.Samples()
	samples[0].Latency = 0
	if rec.Samples()[0].Latency != 2*time.Millisecond {
		t.Fatal("Samples() must return a copy")
	}

	stats := collector.Stats(time.Second)
	if stats.Total != 2 || stats.Dropped != 1 {
		t.Fatalf("collector stats = %+v", stats)
	}

	if got := testutil.CollectAndCount(exporter.Registry(), "orderload_orders_total"); got != 2 {
		t.Errorf("orders_total series = %d, want 2", got)
	}
	expected := `
# HELP orderload_dropped_arrivals_total Scheduled arrivals dropped because no caller was available.
# TYPE orderload_dropped_arrivals_total counter
orderload_dropped_arrivals_total 1
`
	if err := testutil.GatherAndCompare(exporter.Registry(), strings.NewReader(expected), "orderload_dropped_arrivals_total"); err != nil {
		t.Errorf("dropped metric mismatch: %v", err)
	}
}

func TestFlattenCounts(t *testing.T) {
	rows := metrics.FlattenCounts(map[string]int{"b": 2, "a": 2, "c": 5})
	want := []metrics.CountRow{{"c", 5}, {"a", 2}, {"b", 2}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("rows[%d] = %v, want %v", i, rows[i], want[i])
		}
	}
	if metrics.FlattenCounts(nil) != nil {
		t.Fatal("FlattenCounts(nil) should be nil")
	}
}

func TestFriendlyErrorName(t *testing.T) {
	tests := map[string]string{
		"*dispatch.HTTPError":            "HTTP error response",
		"*url.Error":                     "Request URL error",
		"*net.OpError":                   "Op Error (net)",
		"":                               "Unknown error",
		"*context.deadlineExceededError": "Context deadline exceeded",
	}
	for in, want := range tests {
		if got := metrics.FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}
