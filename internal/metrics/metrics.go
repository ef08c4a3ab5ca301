// Package metrics provides Prometheus metrics for the clearity backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TurnsTotal          *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	ProviderErrorsTotal *prometheus.CounterVec
	TasksGenerated      prometheus.Counter
	SnapshotsWritten    prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clearity_turns_total",
				Help: "Total processed chat turns by outcome (ok, degraded, failed).",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clearity_stage_duration_seconds",
				Help:    "Pipeline stage duration by stage.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		ProviderErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clearity_provider_errors_total",
				Help: "Reasoning provider failures by kind.",
			},
			[]string{"kind"},
		),
		TasksGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clearity_tasks_generated_total",
				Help: "Total tasks synthesized across all turns.",
			},
		),
		SnapshotsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clearity_snapshots_written_total",
				Help: "Total mind-map snapshots persisted.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.TurnsTotal)
	reg.MustRegister(m.StageDuration)
	reg.MustRegister(m.ProviderErrorsTotal)
	reg.MustRegister(m.TasksGenerated)
	reg.MustRegister(m.SnapshotsWritten)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTurn increments the turn counter.
func (m *Metrics) RecordTurn(outcome string) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(kind string) {
	m.ProviderErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveStage records a stage duration.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// AddTasks adds to the generated-task counter.
func (m *Metrics) AddTasks(n int) {
	m.TasksGenerated.Add(float64(n))
}
