package runner

import (
	"context"
	"errors"

	"github.com/tradeengine/orderload/internal/config"
	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
)

// Submitter sends one order under the given idempotency key. Implementations
// must not panic and always return a sample, failures included.
type Submitter interface {
	Submit(ctx context.Context, o order.Order, key string) metrics.Sample
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, o order.Order, key string) metrics.Sample

func (f SubmitterFunc) Submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	return f(ctx, o, key)
}

// OrderSource yields the order for a 0-based dispatch index.
type OrderSource func(index int) order.Order

type (
	LoadPattern     = config.LoadPattern
	LoadPatternType = config.LoadPatternType
	LoadStep        = config.LoadStep
	ArrivalModel    = config.ArrivalModel
	BacklogPolicy   = config.BacklogPolicy
)

const (
	LoadPatternTypeRamp  = config.LoadPatternTypeRamp
	LoadPatternTypeStep  = config.LoadPatternTypeStep
	LoadPatternTypeSpike = config.LoadPatternTypeSpike

	ArrivalModelUniform = config.ArrivalModelUniform
	ArrivalModelPoisson = config.ArrivalModelPoisson

	BacklogDrop  = config.BacklogDrop
	BacklogQueue = config.BacklogQueue
)

var (
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrNoSubmitter        = errors.New("submitter is required")
	ErrNoSource           = errors.New("order source is required")
)

// Result summarizes one run. Samples holds every recorded sample in
// completion order.
type Result struct {
	Samples      []metrics.Sample
	Issued       int64 // dispatches started
	Dropped      int64 // open loop: arrivals with no free caller
	Abandoned    int64 // open loop: still in flight after the graceful stop
	PeakInFlight int
}
