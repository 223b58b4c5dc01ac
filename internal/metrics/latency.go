package metrics

import (
	"errors"
	"math"
	"slices"
	"time"
)

// ErrNoSamples is returned by Summarize when there is nothing to report.
var ErrNoSamples = errors.New("metrics: no latency samples recorded")

// Report summarizes a completed run.
type Report struct {
	RunID     string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Count     int           `json:"completed" yaml:"completed"`
	Successes int           `json:"successes" yaml:"successes"`
	Failures  int           `json:"failures" yaml:"failures"`
	Dropped   int64         `json:"dropped" yaml:"dropped"`
	Abandoned int64         `json:"abandoned" yaml:"abandoned"`
	P50       time.Duration `json:"-" yaml:"-"`
	P90       time.Duration `json:"-" yaml:"-"`
	P99       time.Duration `json:"-" yaml:"-"`
	Min       time.Duration `json:"-" yaml:"-"`
	Max       time.Duration `json:"-" yaml:"-"`
	Mean      time.Duration `json:"-" yaml:"-"`
	Duration  time.Duration `json:"-" yaml:"-"`

	// Millisecond renderings for JSON and YAML output.
	P50Ms        float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms        float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms        float64 `json:"p99_ms" yaml:"p99_ms"`
	MinMs        float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs        float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs       float64 `json:"mean_ms" yaml:"mean_ms"`
	DurationMs   float64 `json:"duration_ms" yaml:"duration_ms"`
	OrdersPerSec float64 `json:"orders_per_sec" yaml:"orders_per_sec"`

	Errors        map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
	StatusCodes   map[string]int `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	OrderStatuses map[string]int `json:"order_statuses,omitempty" yaml:"order_statuses,omitempty"`
}

// Percentile returns the sample at rank floor(q*n) of an ascending slice.
// The rank is clamped to the last element so q=1 is well defined.
func Percentile(sorted []time.Duration, q float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Floor(q * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Summarize computes the report for samples. Completion order does not
// matter; samples are sorted by latency first. It returns ErrNoSamples for
// an empty collection instead of inventing percentiles.
func Summarize(samples []Sample) (Report, error) {
	if len(samples) == 0 {
		return Report{}, ErrNoSamples
	}

	latencies := make([]time.Duration, len(samples))
	var sum time.Duration
	report := Report{Count: len(samples)}
	for i, s := range samples {
		latencies[i] = s.Latency
		sum += s.Latency
		if s.Outcome == Success {
			report.Successes++
			if s.Status != "" {
				report.OrderStatuses = increment(report.OrderStatuses, s.Status)
			}
		} else {
			report.Failures++
			report.Errors = increment(report.Errors, errorKind(s))
		}
		if s.StatusCode > 0 {
			report.StatusCodes = increment(report.StatusCodes, statusCodeLabel(s.StatusCode))
		}
	}
	slices.Sort(latencies)

	report.P50 = Percentile(latencies, 0.50)
	report.P90 = Percentile(latencies, 0.90)
	report.P99 = Percentile(latencies, 0.99)
	report.Min = latencies[0]
	report.Max = latencies[len(latencies)-1]
	report.Mean = sum / time.Duration(len(latencies))
	report.fillMillis()
	return report, nil
}

// WithDuration stamps the wall-clock run duration and derived throughput.
func (r Report) WithDuration(d time.Duration) Report {
	r.Duration = d
	r.DurationMs = Ms(d)
	if d > 0 && r.Count > 0 {
		r.OrdersPerSec = float64(r.Count) / d.Seconds()
	}
	return r
}

func (r *Report) fillMillis() {
	r.P50Ms = Ms(r.P50)
	r.P90Ms = Ms(r.P90)
	r.P99Ms = Ms(r.P99)
	r.MinMs = Ms(r.Min)
	r.MaxMs = Ms(r.Max)
	r.MeanMs = Ms(r.Mean)
}

func increment(m map[string]int, key string) map[string]int {
	if m == nil {
		m = make(map[string]int)
	}
	m[key]++
	return m
}
