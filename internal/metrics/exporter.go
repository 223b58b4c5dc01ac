package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes run observations as Prometheus metrics on its own registry.
type Exporter struct {
	registry *prometheus.Registry
	orders   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	dropped  prometheus.Counter
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	e := &Exporter{
		registry: reg,
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orderload",
			Name:      "orders_total",
			Help:      "Orders dispatched, by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orderload",
			Name:      "order_latency_seconds",
			Help:      "Round-trip latency of order submissions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orderload",
			Name:      "dropped_arrivals_total",
			Help:      "Scheduled arrivals dropped because no caller was available.",
		}),
	}
	reg.MustRegister(e.orders, e.latency, e.dropped)
	return e
}

// Observe implements Observer.
func (e *Exporter) Observe(s Sample) {
	outcome := s.Outcome.String()
	e.orders.WithLabelValues(outcome).Inc()
	e.latency.WithLabelValues(outcome).Observe(s.Latency.Seconds())
}

// ObserveDropped implements DropObserver.
func (e *Exporter) ObserveDropped() {
	e.dropped.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
