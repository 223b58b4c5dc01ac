package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pausePoll is how often a paced scheduler re-checks a zero rate.
const pausePoll = 10 * time.Millisecond

type arrivalController interface {
	// Wait blocks until the next arrival is due.
	Wait(ctx context.Context) error
	SetRate(rps float64)
}

func newArrivalController(model ArrivalModel, rps float64, sampler func() float64, seed int64) arrivalController {
	switch model {
	case ArrivalModelPoisson:
		if sampler == nil {
			sampler = rand.New(rand.NewSource(seed)).ExpFloat64
		}
		ctrl := &poissonArrival{sample: sampler}
		ctrl.SetRate(rps)
		return ctrl
	default:
		ctrl := &uniformArrival{limiter: rate.NewLimiter(0, 1)}
		ctrl.SetRate(rps)
		return ctrl
	}
}

// waitPaused blocks while rate reports zero.
func waitPaused(ctx context.Context, current func() float64) error {
	for current() <= 0 {
		timer := time.NewTimer(pausePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// uniformArrival spaces arrivals evenly with a rate.Limiter. The burst is
// about 20ms worth of arrivals so timer overshoot at high rates does not
// lose arrivals, without front-loading a whole second's worth at start.
type uniformArrival struct {
	mu      sync.Mutex
	rps     float64
	limiter *rate.Limiter
}

func (u *uniformArrival) current() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rps
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if err := waitPaused(ctx, u.current); err != nil {
		return err
	}
	return u.limiter.Wait(ctx)
}

func (u *uniformArrival) SetRate(rps float64) {
	if rps < 0 {
		rps = 0
	}
	u.mu.Lock()
	u.rps = rps
	u.mu.Unlock()

	if rps == 0 {
		u.limiter.SetLimit(0)
		return
	}
	u.limiter.SetLimit(rate.Limit(rps))
	u.limiter.SetBurst(uniformBurst(rps))
}

func uniformBurst(rps float64) int {
	burst := int(math.Ceil(rps / 50))
	if burst < 1 {
		burst = 1
	}
	return burst
}

// poissonArrival samples exponential inter-arrival times to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
}

func (p *poissonArrival) current() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	if err := waitPaused(ctx, p.current); err != nil {
		return err
	}
	delay := p.nextDelay()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) SetRate(rps float64) {
	if rps < 0 {
		rps = 0
	}
	p.mu.Lock()
	p.rate = rps
	p.mu.Unlock()
}

func (p *poissonArrival) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate <= 0 || p.sample == nil {
		return 0
	}

	delay := float64(time.Second) * p.sample() / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}
