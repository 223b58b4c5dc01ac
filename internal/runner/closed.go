package runner

import (
	"context"
	"fmt"

	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
)

// ClosedLoop dispatches exactly Total orders with at most Concurrency in
// flight, starting a new one as soon as any finishes.
type ClosedLoop struct {
	Total       int
	Concurrency int
	Source      OrderSource
	Submitter   Submitter
	// CallerID prefixes idempotency keys as "<CallerID>-<n>", n counting
	// from 1 in issuance order. Empty means "load".
	CallerID string
	// Recorder receives samples as they complete; one is created when nil.
	Recorder *metrics.Recorder
}

func (c ClosedLoop) validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w, got %d", ErrInvalidConcurrency, c.Concurrency)
	case c.Submitter == nil:
		return ErrNoSubmitter
	case c.Source == nil:
		return ErrNoSource
	}
	return nil
}

// Run drives the loop until every order has completed. Cancelling ctx stops
// admission; dispatches already started see the cancelled context and are
// still awaited and recorded. If that leaves orders unissued, the context
// error is returned alongside the partial result.
func (c ClosedLoop) Run(ctx context.Context) (Result, error) {
	if err := c.validate(); err != nil {
		return Result{}, err
	}
	rec := c.Recorder
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	callerID := c.CallerID
	if callerID == "" {
		callerID = "load"
	}

	// inFlight and idx are owned by this goroutine; dispatches only send on done.
	done := make(chan metrics.Sample, c.Concurrency)
	keys := order.NewKeySequence(callerID, 1)
	var (
		inFlight int
		idx      int
		peak     int
	)
	for {
		for inFlight < c.Concurrency && idx < c.Total && ctx.Err() == nil {
			o := c.Source(idx)
			idx++
			key := keys.Next()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			go func() {
				done <- c.Submitter.Submit(ctx, o, key)
			}()
		}
		if inFlight == 0 {
			break
		}
		rec.Record(<-done)
		inFlight--
	}

	res := Result{
		Samples:      rec.Samples(),
		Issued:       int64(idx),
		PeakInFlight: peak,
	}
	if idx < c.Total {
		return res, ctx.Err()
	}
	return res, nil
}
