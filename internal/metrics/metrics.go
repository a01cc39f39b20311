// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	BackendDuration  *prometheus.HistogramVec
	BackendResponses *prometheus.CounterVec
	BackendFailures  *prometheus.CounterVec
	Rejected         *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "api_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_gateway_backend_request_duration_seconds",
			Help:    "Backend call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"service", "method"}),

		BackendResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_gateway_backend_responses_total",
			Help: "Total backend responses by service, method and status code.",
		}, []string{"service", "method", "status_code"}),

		BackendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_gateway_backend_failures_total",
			Help: "Backend calls that produced no relayable response, by service and reason.",
		}, []string{"service", "reason"}),

		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_gateway_rejected_requests_total",
			Help: "Requests answered by the gateway without a backend call, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.BackendDuration,
		m.BackendResponses,
		m.BackendFailures,
		m.Rejected,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// PathNormalizer maps request paths to a bounded set of label values.
type PathNormalizer struct {
	prefixes []string
}

// NewPathNormalizer returns a normalizer recognising /api/<resource> for each
// resource plus the gateway's own endpoints.
func NewPathNormalizer(resources []string, extra ...string) *PathNormalizer {
	prefixes := make([]string, 0, len(resources)+len(extra)+2)
	for _, r := range resources {
		prefixes = append(prefixes, "/api/"+r)
	}
	prefixes = append(prefixes, "/health/backends", "/health")
	prefixes = append(prefixes, extra...)
	return &PathNormalizer{prefixes: prefixes}
}

// Normalize returns a bounded path label for Prometheus metrics.
func (n *PathNormalizer) Normalize(path string) string {
	if path == "/" {
		return "/"
	}
	for _, prefix := range n.prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
