package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
)

func fixedSource(index int) order.Order {
	return order.Order{
		ClientID:   "client-0",
		Instrument: order.DefaultInstrument,
		Side:       order.SideBuy,
		Type:       order.TypeLimit,
		Price:      decimal.NewFromInt(int64(30000 + index)),
		Quantity:   decimal.RequireFromString("0.5"),
	}
}

// fakeSubmitter records keys and tracks concurrency.
type fakeSubmitter struct {
	delay   time.Duration
	outcome func(call int64) metrics.Outcome

	calls   atomic.Int64
	current atomic.Int64
	peak    atomic.Int64

	mu     sync.Mutex
	keys   []string
	prices []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	call := f.calls.Add(1)
	n := f.current.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer f.current.Add(-1)

	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.prices = append(f.prices, o.Price.String())
	f.mu.Unlock()

	start := time.Now()
	var err error
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			err = ctx.Err()
		}
	}
	outcome := metrics.Success
	if f.outcome != nil {
		outcome = f.outcome(call)
	}
	if err != nil {
		outcome = metrics.Failure
	}
	return metrics.Sample{
		Latency:    time.Since(start) + time.Microsecond,
		Outcome:    outcome,
		StatusCode: 200,
		Err:        err,
	}
}

func (f *fakeSubmitter) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}
