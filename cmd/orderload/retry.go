package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/tradeengine/orderload/internal/dispatch"
	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/runner"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newRetryPolicy(retries int) runner.RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: shouldRetry,
		DelayFunc: func(attempt int, _ metrics.Sample) time.Duration {
			backoff := retryBackoff(attempt)
			return backoff + source.jitter(backoff/2)
		},
	}
}

// shouldRetry accepts transport failures, 429 and 5xx. Other rejected
// statuses and cancellations are final.
func shouldRetry(s metrics.Sample) bool {
	if s.Outcome == metrics.Success {
		return false
	}
	if errors.Is(s.Err, context.Canceled) || errors.Is(s.Err, context.DeadlineExceeded) {
		return false
	}
	if s.StatusCode == http.StatusTooManyRequests || s.StatusCode >= 500 {
		return true
	}
	var httpErr *dispatch.HTTPError
	return !errors.As(s.Err, &httpErr)
}

func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxRetryDelay
	}
	backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
	if backoff > maxRetryDelay {
		backoff = maxRetryDelay
	}
	return backoff
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
