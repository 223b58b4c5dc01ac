package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
)

// planTick is how often stage rates are re-applied to the arrival controller.
const planTick = 100 * time.Millisecond

// OpenLoop issues orders at a fixed arrival rate regardless of how fast the
// target answers. Arrivals are handed to a pool of callers; each caller runs
// one order at a time and numbers its own iterations, so keys take the form
// "<caller>-<iteration>".
type OpenLoop struct {
	Rate     int // arrivals per second
	Duration time.Duration

	// PreAllocatedCallers are created up front. While fewer than MaxCallers
	// exist a busy pool grows by one caller per arrival.
	PreAllocatedCallers int
	MaxCallers          int

	// Backlog decides what happens to an arrival when the pool cannot grow:
	// drop (default) counts it in Result.Dropped, queue waits for a caller.
	Backlog BacklogPolicy
	Arrival ArrivalModel

	// Stages, when set, replace Rate and Duration with a rate schedule.
	Stages []LoadPattern

	// GracefulStop bounds how long in-flight orders may finish after the
	// last arrival. Orders still running then are cancelled and counted in
	// Result.Abandoned without a sample.
	GracefulStop time.Duration

	Source    OrderSource
	Submitter Submitter
	// KeyPrefix is prepended verbatim to every idempotency key.
	KeyPrefix string
	Recorder  *metrics.Recorder

	PoissonSampler func() float64 // test hook; defaults to a seeded ExpFloat64
	Seed           int64
}

type caller struct {
	id   int
	iter int64
}

func (l OpenLoop) validate(plan *patternPlan) error {
	switch {
	case l.PreAllocatedCallers < 1:
		return fmt.Errorf("%w, got %d pre-allocated callers", ErrInvalidConcurrency, l.PreAllocatedCallers)
	case l.Submitter == nil:
		return ErrNoSubmitter
	case l.Source == nil:
		return ErrNoSource
	case plan == nil && l.Rate <= 0:
		return fmt.Errorf("rate must be positive, got %d", l.Rate)
	case plan == nil && l.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %s", l.Duration)
	}
	return nil
}

// Run schedules arrivals until Duration (or the stage plan) elapses, then
// drains. Cancelling ctx ends scheduling early and cancels in-flight orders,
// which are recorded as failures; the context error is returned with the
// partial result.
func (l OpenLoop) Run(ctx context.Context) (Result, error) {
	plan := compilePatternPlan(l.Stages)
	if err := l.validate(plan); err != nil {
		return Result{}, err
	}
	rec := l.Recorder
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	maxCallers := l.MaxCallers
	if maxCallers < l.PreAllocatedCallers {
		maxCallers = l.PreAllocatedCallers
	}

	runFor := l.Duration
	initial := float64(l.Rate)
	if plan != nil {
		runFor = plan.totalDuration()
		initial, _ = plan.rateAt(0)
	}
	arrival := newArrivalController(l.Arrival, initial, l.PoissonSampler, l.Seed)

	schedCtx, stopScheduling := context.WithTimeout(ctx, runFor)
	defer stopScheduling()
	reqCtx, cancelRequests := context.WithCancel(ctx)
	defer cancelRequests()

	if plan != nil {
		go followPlan(schedCtx, plan, arrival)
	}

	idle := make(chan *caller, maxCallers)
	for i := 1; i <= l.PreAllocatedCallers; i++ {
		idle <- &caller{id: i}
	}
	spawned := l.PreAllocatedCallers

	var (
		wg        sync.WaitGroup
		inFlight  atomic.Int64
		abandoned atomic.Int64
		stopping  atomic.Bool
		dropped   int64
		peak      int64
		issued    int
	)

	dispatch := func(c *caller, idx int) {
		defer wg.Done()
		key := l.KeyPrefix + order.Key(strconv.Itoa(c.id), c.iter)
		c.iter++
		s := l.Submitter.Submit(reqCtx, l.Source(idx), key)
		inFlight.Add(-1)
		if stopping.Load() && errors.Is(s.Err, context.Canceled) {
			abandoned.Add(1)
		} else {
			rec.Record(s)
		}
		idle <- c
	}

schedule:
	for {
		if err := arrival.Wait(schedCtx); err != nil || schedCtx.Err() != nil {
			break
		}

		var c *caller
		select {
		case c = <-idle:
		default:
			switch {
			case spawned < maxCallers:
				spawned++
				c = &caller{id: spawned}
			case l.Backlog == BacklogQueue:
				select {
				case c = <-idle:
				case <-schedCtx.Done():
					break schedule
				}
			default:
				dropped++
				rec.RecordDropped()
				continue
			}
		}

		wg.Add(1)
		if n := inFlight.Add(1); n > peak {
			peak = n
		}
		go dispatch(c, issued)
		issued++
	}

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	if l.GracefulStop > 0 {
		timer := time.NewTimer(l.GracefulStop)
		select {
		case <-drained:
		case <-timer.C:
		}
		timer.Stop()
	}
	select {
	case <-drained:
	default:
		stopping.Store(true)
		cancelRequests()
		<-drained
	}

	return Result{
		Samples:      rec.Samples(),
		Issued:       int64(issued),
		Dropped:      dropped,
		Abandoned:    abandoned.Load(),
		PeakInFlight: int(peak),
	}, ctx.Err()
}

// followPlan applies the stage schedule to the arrival controller until the
// plan ends or ctx is done.
func followPlan(ctx context.Context, plan *patternPlan, arrival arrivalController) {
	start := time.Now()
	ticker := time.NewTicker(planTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rps, ok := plan.rateAt(time.Since(start))
			if !ok {
				return
			}
			arrival.SetRate(rps)
		}
	}
}
