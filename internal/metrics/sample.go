package metrics

import (
	"fmt"
	"time"
)

// Outcome classifies a dispatched request.
type Outcome uint8

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Sample is one request's measurement, from just before the request was
// issued until its response body was drained or the attempt failed.
type Sample struct {
	Latency    time.Duration
	Outcome    Outcome
	StatusCode int    // 0 when no response was received
	Status     string // order status reported by the target, if any
	Err        error
}

// Observer receives every sample as it is recorded.
type Observer interface {
	Observe(s Sample)
}

// DropObserver is implemented by observers that also track arrivals that
// were never dispatched.
type DropObserver interface {
	ObserveDropped()
}

// Ms converts a duration to fractional milliseconds.
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
