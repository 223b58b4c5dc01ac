package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
	"github.com/tradeengine/orderload/internal/runner"
)

type scriptedSubmitter struct {
	mu       sync.Mutex
	outcomes []metrics.Sample
	keys     []string
}

func (s *scriptedSubmitter) Submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	idx := len(s.keys) - 1
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}
	sample := s.outcomes[idx]
	sample.Latency = time.Millisecond
	return sample
}

var (
	ok200   = metrics.Sample{Outcome: metrics.Success, StatusCode: 200}
	fail503 = metrics.Sample{Outcome: metrics.Failure, StatusCode: 503, Err: errors.New("HTTP 503")}
	fail400 = metrics.Sample{Outcome: metrics.Failure, StatusCode: 400, Err: errors.New("HTTP 400")}
)

func TestRetryReusesIdempotencyKey(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{fail503, fail503, ok200}}
	sub := runner.WithRetry(inner, runner.RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond})

	s := sub.Submit(context.Background(), order.Order{}, "load-7")
	if s.Outcome != metrics.Success {
		t.Fatalf("Outcome = %v, want success on third attempt", s.Outcome)
	}
	if len(inner.keys) != 3 {
		t.Fatalf("attempts = %d, want 3", len(inner.keys))
	}
	for _, k := range inner.keys {
		if k != "load-7" {
			t.Fatalf("attempt used key %q, want load-7", k)
		}
	}
	if s.Latency < 10*time.Millisecond {
		t.Fatalf("Latency = %v, want all attempts and delays included", s.Latency)
	}
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{fail503}}
	sub := runner.WithRetry(inner, runner.RetryPolicy{MaxAttempts: 4})

	s := sub.Submit(context.Background(), order.Order{}, "k")
	if s.Outcome != metrics.Failure || s.StatusCode != 503 {
		t.Fatalf("sample = %+v", s)
	}
	if len(inner.keys) != 4 {
		t.Fatalf("attempts = %d, want 4", len(inner.keys))
	}
}

func TestRetryHonoursShouldRetry(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{fail400, ok200}}
	sub := runner.WithRetry(inner, runner.RetryPolicy{
		MaxAttempts: 3,
		ShouldRetry: func(s metrics.Sample) bool { return s.StatusCode >= 500 },
	})

	s := sub.Submit(context.Background(), order.Order{}, "k")
	if s.StatusCode != 400 {
		t.Fatalf("StatusCode = %d, want 400 without retry", s.StatusCode)
	}
	if len(inner.keys) != 1 {
		t.Fatalf("attempts = %d, want 1", len(inner.keys))
	}
}

func TestRetryDelayFuncReceivesAttempt(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{fail503}}
	var attempts []int
	sub := runner.WithRetry(inner, runner.RetryPolicy{
		MaxAttempts: 3,
		DelayFunc: func(attempt int, last metrics.Sample) time.Duration {
			attempts = append(attempts, attempt)
			return 0
		},
	})
	sub.Submit(context.Background(), order.Order{}, "k")
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("DelayFunc attempts = %v, want [1 2]", attempts)
	}
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{fail503}}
	sub := runner.WithRetry(inner, runner.RetryPolicy{MaxAttempts: 3, Delay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := sub.Submit(ctx, order.Order{}, "k")
	if !errors.Is(s.Err, context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want deadline exceeded", s.Err)
	}
	if s.Outcome != metrics.Failure {
		t.Fatalf("Outcome = %v", s.Outcome)
	}
}

func TestWithRetrySingleAttemptIsPassthrough(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{ok200}}
	if got := runner.WithRetry(inner, runner.RetryPolicy{MaxAttempts: 1}); got != runner.Submitter(inner) {
		t.Fatal("expected the inner submitter back")
	}
}

type captureLogger struct {
	keys []string
}

func (c *captureLogger) LogFailure(key string, s metrics.Sample) {
	c.keys = append(c.keys, key)
}

func TestWithLoggingOnlyLogsFailures(t *testing.T) {
	inner := &scriptedSubmitter{outcomes: []metrics.Sample{ok200, fail503}}
	logger := &captureLogger{}
	sub := runner.WithLogging(inner, logger)

	sub.Submit(context.Background(), order.Order{}, "a-1")
	sub.Submit(context.Background(), order.Order{}, "a-2")
	if len(logger.keys) != 1 || logger.keys[0] != "a-2" {
		t.Fatalf("logged keys = %v, want [a-2]", logger.keys)
	}
	if runner.WithLogging(inner, nil) != runner.Submitter(inner) {
		t.Fatal("nil logger should return the inner submitter")
	}
}
