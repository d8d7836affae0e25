package task

import (
	"github.com/forgeline/genrelay/internal/domain"
	"github.com/forgeline/genrelay/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of the task runner.
type Metrics struct {
	created      *prometheus.CounterVec
	finished     *prometheus.CounterVec
	inflight     prometheus.Gauge
	recovered    *prometheus.CounterVec
	pollAttempts *prometheus.CounterVec
	rejected     prometheus.Counter
}

// NewMetrics registers the runner collectors with reg, or with the default
// registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		created: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks admitted, by mode.",
		}, []string{"mode"})),
		finished: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status, by mode and status.",
		}, []string{"mode", "status"})),
		inflight: metrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "tasks_inflight",
			Help:      "Task goroutines currently running in this process.",
		})),
		recovered: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "recovery_tasks_total",
			Help:      "Tasks handled by startup recovery, by phase and outcome.",
		}, []string{"phase", "outcome"})),
		pollAttempts: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "poll_attempts_total",
			Help:      "Vendor job listing requests made while polling, by mode.",
		}, []string{"mode"})),
		rejected: metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Name:      "admission_rejections_total",
			Help:      "Create requests rejected by the admission ceiling.",
		})),
	}
}

func (m *Metrics) taskCreated(mode domain.TaskMode) {
	m.created.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) taskFinished(mode domain.TaskMode, status domain.TaskStatus) {
	m.finished.WithLabelValues(string(mode), string(status)).Inc()
}

func (m *Metrics) recoveryOutcome(phase, outcome string) {
	m.recovered.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) pollAttempt(mode domain.TaskMode) {
	m.pollAttempts.WithLabelValues(string(mode)).Inc()
}
