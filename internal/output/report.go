package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/threshold"
)

// NoDataMessage is printed instead of percentiles when a run completed no orders.
const NoDataMessage = "No data: 0 orders completed"

// Document is the machine-readable form of a run: the report plus any
// threshold verdicts.
type Document struct {
	Report     metrics.Report    `json:"report" yaml:"report"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Passed     bool              `json:"passed" yaml:"passed"`
}

// ThresholdResult is a serializable threshold verdict.
type ThresholdResult struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// NewDocument pairs a report with its threshold results.
func NewDocument(report metrics.Report, results []threshold.Result) Document {
	doc := Document{Report: report, Passed: threshold.AllPassed(results)}
	for _, r := range results {
		doc.Thresholds = append(doc.Thresholds, ThresholdResult{
			Threshold: r.Threshold.Raw,
			Expected:  r.Threshold.Value,
			Actual:    r.Actual,
			Pass:      r.Pass,
		})
	}
	return doc
}

// PrintReport outputs the human-readable summary. The first four lines
// are the completed count and the p50/p90/p99 latencies in milliseconds.
func PrintReport(w io.Writer, report metrics.Report) {
	fmt.Fprintf(w, "Completed %d orders\n", report.Count)
	fmt.Fprintf(w, "p50 latency ms: %.2f\n", report.P50Ms)
	fmt.Fprintf(w, "p90 latency ms: %.2f\n", report.P90Ms)
	fmt.Fprintf(w, "p99 latency ms: %.2f\n", report.P99Ms)

	fmt.Fprintln(w, "\n--- Run Details ---")
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", report.RunID)
	}
	fmt.Fprintf(w, "Successful:        %d\n", report.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", report.Failures)
	if report.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:           %d\n", report.Dropped)
	}
	if report.Abandoned > 0 {
		fmt.Fprintf(w, "Abandoned:         %d\n", report.Abandoned)
	}
	if report.Duration > 0 {
		fmt.Fprintf(w, "Duration:          %s\n", report.Duration)
		fmt.Fprintf(w, "Orders/sec:        %.2f\n", report.OrdersPerSec)
	}
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %.2fms\n", report.MinMs)
	fmt.Fprintf(w, "  Mean:            %.2fms\n", report.MeanMs)
	fmt.Fprintf(w, "  Max:             %.2fms\n", report.MaxMs)

	writeCounts(w, "Status Codes", report.StatusCodes)
	writeCounts(w, "Order Statuses", report.OrderStatuses)
	writeCounts(w, "Errors", report.Errors)
}

// PrintNoData reports an empty run along with any arrivals that never
// produced a sample.
func PrintNoData(w io.Writer, dropped, abandoned int64) {
	fmt.Fprintln(w, NoDataMessage)
	if dropped > 0 {
		fmt.Fprintf(w, "Dropped:           %d\n", dropped)
	}
	if abandoned > 0 {
		fmt.Fprintf(w, "Abandoned:         %d\n", abandoned)
	}
}

// PrintThresholds lists each verdict and a pass/fail summary line.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	passed := 0
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		if r.Pass {
			passed++
		}
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	fmt.Fprintf(w, "  %d/%d passed\n", passed, len(results))
}

// PrintJSONReport outputs a JSON-formatted document.
func PrintJSONReport(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// PrintYAMLReport outputs a YAML-formatted document.
func PrintYAMLReport(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return enc.Close()
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	rows := metrics.FlattenCounts(counts)
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, row := range rows {
		fmt.Fprintf(w, "  %s: %d\n", row.Label, row.Count)
	}
}
