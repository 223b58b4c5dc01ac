// Package dispatch submits a single order to the intake endpoint and turns
// whatever happens into a latency sample.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tradeengine/orderload/internal/httpclient"
	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
	"github.com/tradeengine/orderload/internal/tracing"
)

const (
	maxErrorBodyBytes = 512
	maxProbeBodyBytes = 64 * 1024
)

// HTTPError reports a response whose status did not count as success.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Dispatcher posts orders. It is safe for concurrent use.
type Dispatcher struct {
	client       *http.Client
	builder      *httpclient.RequestBuilder
	expectStatus int
	tracer       trace.Tracer
	propagate    bool
}

type Option func(*Dispatcher)

// WithExpectStatus makes code the only successful status. Zero restores the
// default of accepting any 2xx.
func WithExpectStatus(code int) Option {
	return func(d *Dispatcher) {
		d.expectStatus = code
	}
}

// WithTracer wraps each submission in a client span. When propagate is set
// the span's context is injected into the request headers.
func WithTracer(tracer trace.Tracer, propagate bool) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
		d.propagate = propagate
	}
}

func New(client *http.Client, builder *httpclient.RequestBuilder, opts ...Option) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	d := &Dispatcher{
		client:  client,
		builder: builder,
		tracer:  noop.NewTracerProvider().Tracer("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit sends o with the given idempotency key. It never returns an error:
// marshal, transport, read and status failures all come back as a Failure
// sample with a positive latency.
func (d *Dispatcher) Submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	ctx, span := tracing.StartSubmitSpan(ctx, d.tracer, d.builder.Target(), key,
		tracing.AttrOrderSide.String(string(o.Side)),
		tracing.AttrOrderType.String(string(o.Type)),
	)

	sample := d.submit(ctx, o, key)

	attrs := []attribute.KeyValue{}
	if sample.StatusCode > 0 {
		attrs = append(attrs, tracing.AttrStatusCode.Int(sample.StatusCode))
	}
	if sample.Status != "" {
		attrs = append(attrs, tracing.AttrOrderStatus.String(sample.Status))
	}
	tracing.EndSpan(span, sample.Err, attrs...)
	return sample
}

func (d *Dispatcher) submit(ctx context.Context, o order.Order, key string) metrics.Sample {
	body, err := json.Marshal(o)
	if err != nil {
		return failed(time.Now(), 0, fmt.Errorf("encode order: %w", err))
	}

	req, err := d.builder.Build(ctx, body, key)
	if err != nil {
		return failed(time.Now(), 0, fmt.Errorf("build request: %w", err))
	}
	if d.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return failed(start, 0, err)
	}
	defer resp.Body.Close()

	head, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBodyBytes))
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
	}
	if err != nil {
		return failed(start, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	latency := elapsed(start)

	if !d.accepts(resp.StatusCode) {
		return metrics.Sample{
			Latency:    latency,
			Outcome:    metrics.Failure,
			StatusCode: resp.StatusCode,
			Err:        &HTTPError{StatusCode: resp.StatusCode, Body: snippet(head)},
		}
	}
	return metrics.Sample{
		Latency:    latency,
		Outcome:    metrics.Success,
		StatusCode: resp.StatusCode,
		Status:     probeStatus(head),
	}
}

func (d *Dispatcher) accepts(code int) bool {
	if d.expectStatus != 0 {
		return code == d.expectStatus
	}
	return code >= 200 && code < 300
}

// probeStatus reads the order status the target reports, if the body is a
// JSON object with a string "status" field.
func probeStatus(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	res := gjson.GetBytes(body, "status")
	if res.Type != gjson.String {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(res.String()))
}

func snippet(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(body))
}

func failed(start time.Time, code int, err error) metrics.Sample {
	return metrics.Sample{
		Latency:    elapsed(start),
		Outcome:    metrics.Failure,
		StatusCode: code,
		Err:        err,
	}
}

// elapsed never reports zero; coarse clocks can return identical readings
// for very fast local failures.
func elapsed(start time.Time) time.Duration {
	if d := time.Since(start); d > 0 {
		return d
	}
	return time.Nanosecond
}
