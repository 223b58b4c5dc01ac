// Package threshold evaluates pass/fail assertions such as
// "order_latency:p99 < 250" against a finished run report.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tradeengine/orderload/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "order_latency", "order_failed"
	Aggregate string  // e.g., "p99", "avg", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type extractor func(r metrics.Report) float64

// metricTable maps metric -> aggregate -> value extractor. Latencies are
// reported in milliseconds, rates as fractions or per-second throughput.
var metricTable = map[string]map[string]extractor{
	"order_latency": {
		"p50": func(r metrics.Report) float64 { return r.P50Ms },
		"p90": func(r metrics.Report) float64 { return r.P90Ms },
		"p99": func(r metrics.Report) float64 { return r.P99Ms },
		"avg": func(r metrics.Report) float64 { return r.MeanMs },
		"min": func(r metrics.Report) float64 { return r.MinMs },
		"max": func(r metrics.Report) float64 { return r.MaxMs },
	},
	"order_failed": {
		"count": func(r metrics.Report) float64 { return float64(r.Failures) },
		"rate": func(r metrics.Report) float64 {
			if r.Count == 0 {
				return 0
			}
			return float64(r.Failures) / float64(r.Count)
		},
	},
	"orders": {
		"count": func(r metrics.Report) float64 { return float64(r.Count) },
		"rate":  func(r metrics.Report) float64 { return r.OrdersPerSec },
	},
	"orders_dropped": {
		"count": func(r metrics.Report) float64 { return float64(r.Dropped) },
	},
	"orders_abandoned": {
		"count": func(r metrics.Report) float64 { return float64(r.Abandoned) },
	},
}

var (
	pattern   = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)
	operators = []string{"<", "<=", ">", ">=", "=="}
)

// Evaluator evaluates thresholds against a run report.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the report.
func (e *Evaluator) Evaluate(report metrics.Report) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, report))
	}
	return results
}

// AllPassed reports whether every result passed. An empty set passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, report metrics.Report) Result {
	actual, err := extractMetricValue(t, report)
	if err != nil {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "order_latency:p99 < 250"      (latency percentile in ms)
//   - "order_latency:avg < 100"      (mean latency in ms)
//   - "order_failed:rate < 0.01"     (failure rate as decimal)
//   - "order_failed:count == 0"      (failure count)
//   - "orders:rate >= 1900"          (completed orders per second)
//   - "orders_dropped:count < 10"    (open-loop arrivals that found no caller)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'order_latency:p99 < 250')", s)
	}

	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := metricTable[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(sortedKeys(metricTable), ", "))
	}
	if _, ok := aggregates[aggregate]; !ok {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(sortedKeys(aggregates), ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(operators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings, reporting every
// malformed entry at once.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var problems []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}

	return result, nil
}

func isValidOperator(operator string) bool {
	for _, v := range operators {
		if operator == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, report metrics.Report) (float64, error) {
	aggregates, ok := metricTable[t.Metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
	fn, ok := aggregates[t.Aggregate]
	if !ok {
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
	return fn(report), nil
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
