// Package metrics provides Prometheus metrics for the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	WebhooksTotal    *prometheus.CounterVec
	IngestDuration   *prometheus.HistogramVec
	ResolutionsTotal *prometheus.CounterVec
	WorklogSyncTotal *prometheus.CounterVec
	WorklogsOpen     prometheus.Gauge
	ErrorsTotal      *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_webhooks_total",
				Help: "Webhook deliveries by source and outcome.",
			},
			[]string{"source", "status"},
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowforge_ingest_duration_seconds",
				Help:    "Webhook processing duration by source.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_provider_resolutions_total",
				Help: "Provider resolutions by capability and selection source.",
			},
			[]string{"capability", "source"},
		),
		WorklogSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_worklog_sync_total",
				Help: "Worklog upstream push attempts by result.",
			},
			[]string{"result"},
		),
		WorklogsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowforge_worklogs_open",
				Help: "Work sections currently in progress.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_errors_total",
				Help: "Errors by component and type.",
			},
			[]string{"component", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.WebhooksTotal)
	reg.MustRegister(m.IngestDuration)
	reg.MustRegister(m.ResolutionsTotal)
	reg.MustRegister(m.WorklogSyncTotal)
	reg.MustRegister(m.WorklogsOpen)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWebhook increments the webhook counter.
func (m *Metrics) RecordWebhook(source, status string) {
	m.WebhooksTotal.WithLabelValues(source, status).Inc()
}

// ObserveIngest records webhook processing duration.
func (m *Metrics) ObserveIngest(source string, seconds float64) {
	m.IngestDuration.WithLabelValues(source).Observe(seconds)
}

// RecordResolution increments the resolution counter.
func (m *Metrics) RecordResolution(capability, source string) {
	m.ResolutionsTotal.WithLabelValues(capability, source).Inc()
}

// RecordWorklogSync increments the sync counter.
func (m *Metrics) RecordWorklogSync(result string) {
	m.WorklogSyncTotal.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errType string) {
	m.ErrorsTotal.WithLabelValues(component, errType).Inc()
}
