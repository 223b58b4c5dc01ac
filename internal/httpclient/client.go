package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tradeengine/orderload/internal/config"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderAPIKey         = "X-API-Key"
	contentTypeJSON      = "application/json"
)

// RequestBuilder produces POST requests carrying one JSON order each.
type RequestBuilder struct {
	target  string
	headers http.Header
}

func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if strings.TrimSpace(cfg.Target.Host) == "" {
		return nil, errors.New("target host is required")
	}

	headers := http.Header{}
	for key, value := range cfg.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	if cfg.APIKey != "" {
		if strings.ContainsAny(cfg.APIKey, "\r\n") {
			return nil, errors.New("invalid api key")
		}
		headers.Set(HeaderAPIKey, cfg.APIKey)
	}
	headers.Set("Content-Type", contentTypeJSON)

	return &RequestBuilder{
		target:  cfg.Target.URL(),
		headers: headers,
	}, nil
}

// Target returns the URL every request is sent to.
func (b *RequestBuilder) Target() string {
	return b.target
}

// Build returns a replayable POST of body with the given idempotency key.
// An empty key omits the header.
func (b *RequestBuilder) Build(ctx context.Context, body []byte, idempotencyKey string) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return req, nil
}

// NewClient returns a client tuned for many concurrent requests to one host.
// maxConnsPerHost sizes the idle pool so connections are reused across
// dispatches; values below 1 fall back to 32.
func NewClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConnsPerHost < 1 {
		maxConnsPerHost = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxConnsPerHost,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
