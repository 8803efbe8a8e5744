package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by code and endpoint
	ErrorCounter *prometheus.CounterVec
	// UpstreamRequests counts calls to the Xero API by resource and status
	UpstreamRequests *prometheus.CounterVec
	// UpstreamLatency tracks Xero API call latency by resource
	UpstreamLatency *prometheus.HistogramVec
	// CacheOps counts response cache lookups by result (hit/miss)
	CacheOps *prometheus.CounterVec
	// TokenRefreshes counts token refresh attempts by outcome
	TokenRefreshes *prometheus.CounterVec
	// RateLimitRemaining tracks the last seen per-minute remaining count
	RateLimitRemaining *prometheus.GaugeVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"code", "endpoint", "method"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of Xero API requests",
			},
			[]string{"resource", "status"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Xero API request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Total number of response cache lookups",
			},
			[]string{"result"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of token refresh attempts",
			},
			[]string{"outcome"},
		),
		RateLimitRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rate_limit_remaining",
				Help:      "Last observed remaining Xero API calls",
			},
			[]string{"window"},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.CacheOps,
		m.TokenRefreshes,
		m.RateLimitRemaining,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(code, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(code, endpoint, method).Inc()
}

// RecordUpstreamRequest records one Xero API call
func (m *Metrics) RecordUpstreamRequest(resource, status string, durationSeconds float64) {
	m.UpstreamRequests.WithLabelValues(resource, status).Inc()
	m.UpstreamLatency.WithLabelValues(resource).Observe(durationSeconds)
}

// RecordCacheOp records a response cache lookup result ("hit" or "miss")
func (m *Metrics) RecordCacheOp(result string) {
	m.CacheOps.WithLabelValues(result).Inc()
}

// RecordTokenRefresh records a token refresh attempt outcome
func (m *Metrics) RecordTokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// SetRateLimitRemaining records the last observed remaining count for a window
func (m *Metrics) SetRateLimitRemaining(window string, remaining int64) {
	if remaining < 0 {
		return
	}
	m.RateLimitRemaining.WithLabelValues(window).Set(float64(remaining))
}
