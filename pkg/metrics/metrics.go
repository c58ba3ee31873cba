// Package metrics provides the Prometheus collectors used by the metrics interceptor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Config defines the configuration for Prometheus metrics.
type Config struct {
	Namespace string // Namespace for metrics
	Subsystem string // Subsystem for metrics

	// Registry to register collectors with. A new registry with the Go and
	// process collectors is created when nil.
	Registry *prometheus.Registry

	// Buckets for the duration histogram. Defaults to defaultBuckets.
	Buckets []float64
}

// Metrics holds all Prometheus collectors for intercepted requests.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResponseBytes    *prometheus.CounterVec
	RequestsInFlight prometheus.Gauge
}

// New creates a Metrics instance and registers all collectors.
func New(config Config) *Metrics {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	labels := []string{"method", "status_code"}
	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total intercepted HTTP requests.",
		}, labels),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "Intercepted HTTP request latency in seconds.",
			Buckets:   buckets,
		}, labels),

		ResponseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_response_bytes_total",
			Help:      "Total response body bytes sent.",
		}, labels),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ResponseBytes,
		m.RequestsInFlight,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod maps unknown methods to "OTHER".
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "OTHER"
}
