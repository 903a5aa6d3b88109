// Package metrics exposes execution metrics in the Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matterflow"

// Metrics records workflow execution metrics. It is meant to be attached to
// the engine as an observer.
type Metrics struct {
	registry *prometheus.Registry

	executionsStarted  prometheus.Counter
	executionsFinished *prometheus.CounterVec
	activeExecutions   prometheus.Gauge
	executionDuration  *prometheus.HistogramVec
	stepsTotal         *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry, alongside the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Total number of workflow executions started",
		}),
		executionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_finished_total",
			Help:      "Total number of workflow executions by terminal status",
		}, []string{"status"}),
		activeExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_executions",
			Help:      "Number of workflow executions currently running",
		}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Duration of finished workflow executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of recorded steps by action kind and outcome",
		}, []string{"action_kind", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.executionsStarted,
		m.executionsFinished,
		m.activeExecutions,
		m.executionDuration,
		m.stepsTotal,
	)

	return m
}

// Registry is the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ExecutionStarted(_ context.Context, _ *models.Execution) {
	m.executionsStarted.Inc()
	m.activeExecutions.Inc()
}

func (m *Metrics) ExecutionFinished(_ context.Context, execution *models.Execution) {
	status := string(execution.Status)

	m.activeExecutions.Dec()
	m.executionsFinished.WithLabelValues(status).Inc()

	if execution.FinishedAt != nil {
		m.executionDuration.WithLabelValues(status).Observe(execution.FinishedAt.Sub(execution.StartedAt).Seconds())
	}

	for _, step := range execution.StepResults {
		m.stepsTotal.WithLabelValues(string(step.ActionKind), string(step.Outcome)).Inc()
	}
}
