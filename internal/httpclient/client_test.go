package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradeengine/orderload/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Target: config.TargetConfig{Host: "127.0.0.1", Port: 8080},
		Headers: map[string]string{
			"x-tenant": "acme",
		},
		APIKey: "secret",
	}
}

func TestBuildOrderRequest(t *testing.T) {
	builder, err := NewRequestBuilder(testConfig())
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}

	body := []byte(`{"clientId":"client-1"}`)
	req, err := builder.Build(context.Background(), body, "load-1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if req.Method != http.MethodPost {
		t.Fatalf("method = %s, want POST", req.Method)
	}
	if req.URL.String() != "http://127.0.0.1:8080/orders" {
		t.Fatalf("URL = %s", req.URL.String())
	}
	checks := map[string]string{
		"Content-Type":    "application/json",
		"Idempotency-Key": "load-1",
		"X-Api-Key":       "secret",
		"X-Tenant":        "acme",
	}
	for key, want := range checks {
		if got := req.Header.Get(key); got != want {
			t.Errorf("header %s = %q, want %q", key, got, want)
		}
	}
	if req.ContentLength != int64(len(body)) {
		t.Fatalf("ContentLength = %d, want %d", req.ContentLength, len(body))
	}

	got, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("body = %q", got)
	}

	replay, err := req.GetBody()
	if err != nil {
		t.Fatalf("GetBody() error = %v", err)
	}
	replayed, _ := io.ReadAll(replay)
	if string(replayed) != string(body) {
		t.Fatalf("replayed body = %q", replayed)
	}
}

func TestBuildDoesNotShareHeaders(t *testing.T) {
	builder, err := NewRequestBuilder(testConfig())
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	first, _ := builder.Build(context.Background(), nil, "a-1")
	second, _ := builder.Build(context.Background(), nil, "a-2")
	if first.Header.Get(HeaderIdempotencyKey) != "a-1" || second.Header.Get(HeaderIdempotencyKey) != "a-2" {
		t.Fatalf("keys leaked between requests: %q %q",
			first.Header.Get(HeaderIdempotencyKey), second.Header.Get(HeaderIdempotencyKey))
	}
}

func TestBuildWithoutKeyOmitsHeader(t *testing.T) {
	builder, err := NewRequestBuilder(testConfig())
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	req, err := builder.Build(context.Background(), []byte("{}"), "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := req.Header[HeaderIdempotencyKey]; ok {
		t.Fatal("expected no Idempotency-Key header")
	}
}

func TestRequestBuilderRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty key", func(c *config.Config) { c.Headers = map[string]string{"": "v"} }},
		{"newline key", func(c *config.Config) { c.Headers = map[string]string{"Bad\nKey": "v"} }},
		{"newline value", func(c *config.Config) { c.Headers = map[string]string{"X-Test": "bad\rvalue"} }},
		{"newline api key", func(c *config.Config) { c.APIKey = "a\nb" }},
		{"missing host", func(c *config.Config) { c.Target.Host = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := NewRequestBuilder(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(20*time.Millisecond, 4)
	resp, err := client.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected timeout error")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(-time.Second, 0)
	if client.Timeout != 0 {
		t.Fatalf("Timeout = %v, want 0", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport type = %T", client.Transport)
	}
	if transport.MaxIdleConnsPerHost != 32 {
		t.Fatalf("MaxIdleConnsPerHost = %d", transport.MaxIdleConnsPerHost)
	}
}
