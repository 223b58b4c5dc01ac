// Package metrics records per-request latency samples and turns them into
// run reports.
//
// # Samples and Reports
//
// Every dispatched order produces exactly one [Sample], whether it
// succeeded or failed. A [Recorder] owns the run-scoped collection and
// [Summarize] turns the collection into a [Report]:
//
//	rec := metrics.NewRecorder()
//	rec.Record(metrics.Sample{Latency: 12 * time.Millisecond, Outcome: metrics.Success})
//	report, err := metrics.Summarize(rec.Samples())
//	if errors.Is(err, metrics.ErrNoSamples) {
//		// nothing completed
//	}
//
// # Percentiles
//
// Percentiles are rank based and never interpolated: for quantile q over n
// sorted samples the value is the sample at index floor(q*n). With the
// samples 1ms..100ms this gives P50 = 51ms, P90 = 91ms and P99 = 100ms.
//
// # Live Statistics
//
// [Collector] keeps running totals in an HDR histogram for progress output
// while a run is in flight. It is approximate and is never used for the
// final report. [Exporter] publishes the same observations to Prometheus.
//
// # Thread Safety
//
// Recorder, Collector and Exporter are safe for concurrent use.
package metrics
