package main

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tradeengine/orderload/internal/httpclient"
	"github.com/tradeengine/orderload/internal/order"
)

const maxOrderBytes = 64 << 10

type stubConfig struct {
	APIKey    string
	RateLimit int
	Latency   time.Duration
	FailRate  float64
}

// acceptedOrder is the body returned for an accepted order.
type acceptedOrder struct {
	ID string
	order.Order
	Status    string
	CreatedAt time.Time
}

// MarshalJSON flattens the embedded order next to the server fields,
// keeping price and quantity as the exact numbers the order encodes.
func (a acceptedOrder) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(a.Order)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	extra := map[string]string{
		"id":        a.ID,
		"status":    a.Status,
		"createdAt": a.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = encoded
	}
	return json.Marshal(fields)
}

type stub struct {
	cfg     stubConfig
	log     *zap.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	byKey map[string]acceptedOrder
	rnd   *rand.Rand
}

func newStub(cfg stubConfig, log *zap.Logger) *stub {
	if log == nil {
		log = zap.NewNop()
	}
	s := &stub{
		cfg:   cfg,
		log:   log,
		byKey: make(map[string]acceptedOrder),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	return s
}

func (s *stub) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", s.handleOrders)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	})
	return mux
}

func (s *stub) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.cfg.APIKey != "" && r.Header.Get(httpclient.HeaderAPIKey) != s.cfg.APIKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	var o order.Order
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBytes)).Decode(&o); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := o.Validate(); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-r.Context().Done():
			return
		}
	}

	key := r.Header.Get(httpclient.HeaderIdempotencyKey)
	accepted, replay, fail := s.accept(key, o)
	if fail {
		s.log.Debug("injected failure", zap.String("idempotency_key", key))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "injected failure"})
		return
	}
	if replay {
		s.log.Debug("idempotent replay", zap.String("idempotency_key", key), zap.String("id", accepted.ID))
	}
	respondJSON(w, http.StatusOK, accepted)
}

// accept stores o under key, or returns the order already stored there.
// An empty key is never deduplicated. Injected failures store nothing.
func (s *stub) accept(key string, o order.Order) (acceptedOrder, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if prev, ok := s.byKey[key]; ok {
			return prev, true, false
		}
	}
	if s.cfg.FailRate > 0 && s.rnd.Float64() < s.cfg.FailRate {
		return acceptedOrder{}, false, true
	}
	accepted := acceptedOrder{
		ID:        ulid.Make().String(),
		Order:     o,
		Status:    "open",
		CreatedAt: time.Now().UTC(),
	}
	if key != "" {
		s.byKey[key] = accepted
	}
	return accepted, false, false
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
