// Package metrics defines the client-side Prometheus collectors. The
// client has no scrape endpoint; collectors live in a private registry and
// can be dumped to a textfile on exit.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chemviz"

type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts completed HTTP exchanges.
	// Labels: endpoint (route template, e.g. "/summary/{id}/"), code ("200", "401", "error").
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes round-trip latency per endpoint.
	RequestDuration *prometheus.HistogramVec

	// AuthRejections counts 401 responses seen by the transport.
	AuthRejections prometheus.Counter

	// SignOuts counts session teardowns. Label: reason ("logout", "rejected").
	SignOuts *prometheus.CounterVec

	// LocalValidationFailures counts inputs refused before any request.
	// Label: reason ("missing_file", "extension", "size", "missing_credentials").
	LocalValidationFailures *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests issued to the backend, by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Backend round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AuthRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Responses that rejected the presented credential.",
		}),
		SignOuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_outs_total",
			Help:      "Session teardowns, by reason.",
		}, []string{"reason"}),
		LocalValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_validation_failures_total",
			Help:      "Inputs refused locally before reaching the backend.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.AuthRejections, m.SignOuts, m.LocalValidationFailures)
	return m
}

func (m *Metrics) ObserveRequest(endpoint string, code int, seconds float64) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.RequestsTotal.WithLabelValues(endpoint, label).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// WriteFile dumps all collectors in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
