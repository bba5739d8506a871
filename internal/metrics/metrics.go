// Package metrics exposes the routing engine's Prometheus collectors,
// grounded on the teacher pack's infrastructure/metrics.Metrics
// (r3e-network-service_layer): one struct of pre-registered collectors, a
// constructor taking an explicit Registerer, and narrow Record* methods so
// callers never touch the prometheus API directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the routing engine emits.
type Metrics struct {
	PaymentsTotal          *prometheus.CounterVec
	PaymentDuration        *prometheus.HistogramVec
	ProcessorAttemptsTotal *prometheus.CounterVec
	CircuitBreakerOpen     *prometheus.GaugeVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against the given
// registerer, so tests can use a throwaway prometheus.NewRegistry().
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_total",
				Help: "Total payments processed, by outcome.",
			},
			[]string{"status"},
		),
		PaymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_duration_seconds",
				Help:    "End-to-end payment processing duration.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		ProcessorAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processor_attempts_total",
				Help: "Total waterfall attempts against one processor, by outcome.",
			},
			[]string{"processor", "outcome"},
		),
		CircuitBreakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_open",
				Help: "1 if a processor's circuit breaker is open, 0 otherwise.",
			},
			[]string{"processor"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, by route and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.PaymentsTotal,
			m.PaymentDuration,
			m.ProcessorAttemptsTotal,
			m.CircuitBreakerOpen,
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
		)
	}
	return m
}

// RecordPayment records one completed ProcessPayment call.
func (m *Metrics) RecordPayment(success bool, duration time.Duration) {
	status := "declined"
	if success {
		status = "success"
	}
	m.PaymentsTotal.WithLabelValues(status).Inc()
	m.PaymentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordProcessorAttempt records one waterfall attempt against a processor.
func (m *Metrics) RecordProcessorAttempt(processorName, outcome string) {
	m.ProcessorAttemptsTotal.WithLabelValues(processorName, outcome).Inc()
}

// SetCircuitBreakerOpen reports current breaker state for a processor.
func (m *Metrics) SetCircuitBreakerOpen(processorName string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.CircuitBreakerOpen.WithLabelValues(processorName).Set(v)
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
