package events

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/stagegrid/internal/model"
)

// MetricsSink derives Prometheus metrics from the event stream. It owns a
// private registry so several runs in one process do not collide.
type MetricsSink struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	running  map[string]struct{}

	NodesCompleted *prometheus.CounterVec
	NodeDuration   *prometheus.HistogramVec
	NodesRunning   *prometheus.GaugeVec
	PipelineRuns   *prometheus.CounterVec
	OutputBytes    prometheus.Counter
}

// NewMetricsSink creates the metrics and registers them on a new registry.
func NewMetricsSink() *MetricsSink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &MetricsSink{
		registry: reg,
		running:  make(map[string]struct{}),
		NodesCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagegrid_nodes_completed_total",
				Help: "Completed stages, jobs and steps by terminal status.",
			},
			[]string{"kind", "status"},
		),
		NodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stagegrid_node_duration_seconds",
				Help:    "Duration of completed stages, jobs and steps.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"kind"},
		),
		NodesRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stagegrid_nodes_running",
				Help: "Stages, jobs and steps currently running.",
			},
			[]string{"kind"},
		),
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagegrid_pipeline_runs_total",
				Help: "Completed pipeline runs by status.",
			},
			[]string{"status"},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "stagegrid_step_output_bytes_total",
				Help: "Bytes of step output observed.",
			},
		),
	}
}

// Registry returns the private registry.
func (m *MetricsSink) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsSink) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Handle implements Sink.
func (m *MetricsSink) Handle(_ context.Context, ev model.ExecutionEvent) error {
	switch ev.Kind {
	case model.EventStageStarted:
		m.started("stage", ev)
	case model.EventJobStarted:
		m.started("job", ev)
	case model.EventStepStarted:
		m.started("step", ev)
	case model.EventStageCompleted:
		m.completed("stage", ev)
	case model.EventJobCompleted:
		m.completed("job", ev)
	case model.EventStepCompleted:
		m.completed("step", ev)
	case model.EventStepOutput:
		m.OutputBytes.Add(float64(len(ev.Chunk)))
	case model.EventPipelineCompleted:
		m.PipelineRuns.WithLabelValues(ev.Status.String()).Inc()
	}
	return nil
}

func runningKey(kind string, ev model.ExecutionEvent) string {
	return kind + "/" + ev.Stage + "/" + ev.Job + "/" + ev.Step
}

func (m *MetricsSink) started(kind string, ev model.ExecutionEvent) {
	m.mu.Lock()
	m.running[runningKey(kind, ev)] = struct{}{}
	m.mu.Unlock()
	m.NodesRunning.WithLabelValues(kind).Inc()
}

// completed records a terminal transition. Nodes skipped without starting
// only count towards NodesCompleted.
func (m *MetricsSink) completed(kind string, ev model.ExecutionEvent) {
	m.NodesCompleted.WithLabelValues(kind, ev.Status.String()).Inc()

	key := runningKey(kind, ev)
	m.mu.Lock()
	_, wasRunning := m.running[key]
	delete(m.running, key)
	m.mu.Unlock()
	if wasRunning {
		m.NodesRunning.WithLabelValues(kind).Dec()
		m.NodeDuration.WithLabelValues(kind).Observe(ev.Duration.Seconds())
	}
}
