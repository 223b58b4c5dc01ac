package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tradeengine/orderload/internal/config"
	"github.com/tradeengine/orderload/internal/httpclient"
	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
)

func sampleOrder() order.Order {
	return order.Order{
		ClientID:   "client-1",
		Instrument: order.DefaultInstrument,
		Side:       order.SideBuy,
		Type:       order.TypeLimit,
		Price:      decimal.RequireFromString("30123.45"),
		Quantity:   decimal.RequireFromString("0.125"),
	}
}

func newDispatcher(t *testing.T, srv *httptest.Server, opts ...Option) *Dispatcher {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	builder, err := httpclient.NewRequestBuilder(&config.Config{
		Target: config.TargetConfig{Host: host, Port: port},
		APIKey: "k",
	})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	return New(httpclient.NewClient(2*time.Second, 4), builder, opts...)
}

func TestSubmitSuccess(t *testing.T) {
	var (
		mu      sync.Mutex
		gotKey  string
		gotBody map[string]interface{}
		gotPath string
		gotCT   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"orderId":"o-1","status":"OPEN"}`)
	}))
	defer srv.Close()

	s := newDispatcher(t, srv).Submit(context.Background(), sampleOrder(), "load-1")

	if s.Outcome != metrics.Success {
		t.Fatalf("Outcome = %v, err = %v", s.Outcome, s.Err)
	}
	if s.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", s.StatusCode)
	}
	if s.Status != "open" {
		t.Errorf("Status = %q, want open", s.Status)
	}
	if s.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", s.Latency)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotKey != "load-1" {
		t.Errorf("Idempotency-Key = %q", gotKey)
	}
	if gotPath != "/orders" {
		t.Errorf("path = %q", gotPath)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotBody["price"] != 30123.45 || gotBody["side"] != "buy" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestSubmitStatusClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		expect      int
		wantOutcome metrics.Outcome
	}{
		{"200 default", http.StatusOK, 0, metrics.Success},
		{"201 default", http.StatusCreated, 0, metrics.Success},
		{"201 strict", http.StatusCreated, http.StatusOK, metrics.Failure},
		{"200 strict", http.StatusOK, http.StatusOK, metrics.Success},
		{"409 duplicate", http.StatusConflict, 0, metrics.Failure},
		{"503", http.StatusServiceUnavailable, 0, metrics.Failure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, "busy")
			}))
			defer srv.Close()

			s := newDispatcher(t, srv, WithExpectStatus(tt.expect)).Submit(context.Background(), sampleOrder(), "k-1")
			if s.Outcome != tt.wantOutcome {
				t.Fatalf("Outcome = %v, want %v", s.Outcome, tt.wantOutcome)
			}
			if s.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", s.StatusCode, tt.status)
			}
			if tt.wantOutcome == metrics.Failure {
				var httpErr *HTTPError
				if !errors.As(s.Err, &httpErr) {
					t.Fatalf("Err = %v, want *HTTPError", s.Err)
				}
				if httpErr.Body != "busy" {
					t.Errorf("HTTPError.Body = %q", httpErr.Body)
				}
			}
		})
	}
}

func TestSubmitConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	d := newDispatcher(t, srv)
	srv.Close()

	s := d.Submit(context.Background(), sampleOrder(), "load-1")
	if s.Outcome != metrics.Failure {
		t.Fatalf("Outcome = %v, want failure", s.Outcome)
	}
	if s.Err == nil || s.StatusCode != 0 {
		t.Fatalf("sample = %+v", s)
	}
	if s.Latency <= 0 {
		t.Fatalf("Latency = %v, want > 0", s.Latency)
	}
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := newDispatcher(t, srv).Submit(ctx, sampleOrder(), "load-1")
	if s.Outcome != metrics.Failure {
		t.Fatalf("Outcome = %v, want failure", s.Outcome)
	}
	if !errors.Is(s.Err, context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want deadline exceeded", s.Err)
	}
	if s.Latency < 40*time.Millisecond {
		t.Fatalf("Latency = %v, want about the timeout", s.Latency)
	}
}

func TestSubmitLatencyIncludesBodyDrain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(60 * time.Millisecond)
		_, _ = io.WriteString(w, `{"status":"filled"}`)
	}))
	defer srv.Close()

	s := newDispatcher(t, srv).Submit(context.Background(), sampleOrder(), "load-1")
	if s.Outcome != metrics.Success {
		t.Fatalf("Outcome = %v, err = %v", s.Outcome, s.Err)
	}
	if s.Latency < 50*time.Millisecond {
		t.Fatalf("Latency = %v, want body drain included", s.Latency)
	}
	if s.Status != "filled" {
		t.Errorf("Status = %q", s.Status)
	}
}

func TestProbeStatus(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"status":"PARTIALLY_FILLED"}`, "partially_filled"},
		{`{"status":3}`, ""},
		{`{"state":"open"}`, ""},
		{`not json`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		if got := probeStatus([]byte(tt.body)); got != tt.want {
			t.Errorf("probeStatus(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestSubmitRecordsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	traceparents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparents <- r.Header.Get("Traceparent")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv, WithTracer(tp.Tracer("test"), false))
	s := d.Submit(context.Background(), sampleOrder(), "load-9")
	if s.Outcome != metrics.Failure {
		t.Fatalf("Outcome = %v", s.Outcome)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Description != "HTTP 503" {
		t.Errorf("span status = %q", spans[0].Status.Description)
	}
	if got := <-traceparents; got != "" {
		t.Errorf("traceparent sent without propagation: %q", got)
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	if got := (&HTTPError{StatusCode: 500}).Error(); got != "HTTP 500" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&HTTPError{StatusCode: 400, Body: "bad price"}).Error(); got != "HTTP 400: bad price" {
		t.Errorf("Error() = %q", got)
	}
}
