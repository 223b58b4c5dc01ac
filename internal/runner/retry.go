package runner

import (
	"context"
	"time"

	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
)

// FailureLogger logs failed submissions.
type FailureLogger interface {
	LogFailure(key string, s metrics.Sample)
}

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                                  // total attempts including the first
	Delay       time.Duration                                        // fixed delay between attempts when DelayFunc is nil
	ShouldRetry func(metrics.Sample) bool                            // nil retries every failure
	DelayFunc   func(attempt int, last metrics.Sample) time.Duration // attempt is 1-based
}

type retrySubmitter struct {
	inner  Submitter
	policy RetryPolicy
}

// WithRetry resubmits failed orders under the same idempotency key. The
// returned sample is the last attempt's, with Latency stretched to cover
// every attempt and the delays between them.
func WithRetry(s Submitter, policy RetryPolicy) Submitter {
	if policy.MaxAttempts <= 1 {
		return s
	}
	return &retrySubmitter{inner: s, policy: policy}
}

func (r *retrySubmitter) Submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	start := time.Now()
	var last metrics.Sample
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		last = r.inner.Submit(ctx, o, key)
		if last.Outcome == metrics.Success || attempt == r.policy.MaxAttempts {
			break
		}
		if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(last) {
			break
		}

		delay := r.policy.Delay
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, last)
		}
		if err := sleep(ctx, delay); err != nil {
			last = metrics.Sample{Outcome: metrics.Failure, StatusCode: last.StatusCode, Err: err}
			break
		}
	}
	last.Latency = time.Since(start)
	return last
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type loggingSubmitter struct {
	inner  Submitter
	logger FailureLogger
}

// WithLogging reports every failed sample to logger.
func WithLogging(s Submitter, logger FailureLogger) Submitter {
	if logger == nil {
		return s
	}
	return &loggingSubmitter{inner: s, logger: logger}
}

func (l *loggingSubmitter) Submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	s := l.inner.Submit(ctx, o, key)
	if s.Outcome == metrics.Failure {
		l.logger.LogFailure(key, s)
	}
	return s
}
