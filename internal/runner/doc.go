// Package runner drives order submissions against the target.
//
// Two strategies are provided:
//
//   - [ClosedLoop] keeps a fixed number of orders in flight and dispatches
//     exactly Total orders, starting the next as soon as any completes.
//     Its throughput is bounded by the target's latency.
//   - [OpenLoop] issues arrivals at a fixed rate (or a staged schedule of
//     rates) from a pool of callers, independent of how fast the target
//     answers. Arrivals that find no free caller are dropped or queued
//     according to its [BacklogPolicy].
//
// Both call a [Submitter] once per order and record every returned sample,
// failures included, into a [metrics.Recorder]:
//
//	loop := runner.ClosedLoop{
//		Total:       1000,
//		Concurrency: 20,
//		Source:      gen.Generate,
//		Submitter:   dispatcher,
//	}
//	res, err := loop.Run(ctx)
//	report, err := metrics.Summarize(res.Samples)
//
// # Arrival Models
//
// The open loop paces arrivals with [ArrivalModelUniform] (evenly spaced,
// via golang.org/x/time/rate) or [ArrivalModelPoisson] (exponential
// inter-arrival gaps).
//
// # Middleware
//
//   - [WithRetry] resubmits failures with the same idempotency key.
//   - [WithLogging] reports failed samples to a [FailureLogger].
package runner
