package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	importRows    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith registers collectors on reg.
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqrs",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pqrs",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqrs",
			Name:      "case_transitions_total",
			Help:      "Committed case state transitions.",
		}, []string{"from", "to"}),
		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqrs",
			Name:      "deadline_alerts_total",
			Help:      "Deadline alerts by outcome.",
		}, []string{"outcome"}),
		importRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqrs",
			Name:      "import_rows_total",
			Help:      "Bulk import rows by outcome.",
		}, []string{"outcome"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqrs",
			Name:      "notifications_total",
			Help:      "Notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.gatherer
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordTransition counts a committed state change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordAlert counts a deadline alert outcome: alerted, suppressed or failed.
func (m *Metrics) RecordAlert(outcome string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(outcome).Inc()
}

// RecordImportRow counts a bulk import row outcome: created or failed.
func (m *Metrics) RecordImportRow(outcome string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(outcome).Inc()
}

// RecordNotification counts a notification outcome.
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}
