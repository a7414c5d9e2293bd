package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Spectra/internal/domain"
)

// Metrics — Prometheus метрики выполнения пайплайна.
//
// Все методы безопасны для nil receiver: без --metrics-addr
// оркестратор получает nil и метрики не собираются.
type Metrics struct {
	instances        *prometheus.CounterVec
	instanceDuration *prometheus.HistogramVec
	running          *prometheus.GaugeVec
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics создаёт и регистрирует метрики в reg.
// nil reg — новый приватный registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		instances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spectra",
				Name:      "stage_instances_total",
				Help:      "Finished stage instances by stage and status.",
			},
			[]string{"stage", "status"},
		),
		instanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "spectra",
				Name:      "stage_instance_duration_seconds",
				Help:      "Stage instance wall time.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"stage"},
		),
		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "spectra",
				Name:      "stage_instances_running",
				Help:      "Stage instances currently running.",
			},
			[]string{"stage"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spectra",
				Name:      "runs_total",
				Help:      "Finished runs by status.",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "spectra",
				Name:      "run_duration_seconds",
				Help:      "Run wall time.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.instances, m.instanceDuration, m.running, m.runs, m.runDuration)
	return m
}

// InstanceStarted учитывает запуск экземпляра.
func (m *Metrics) InstanceStarted(stage string) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(stage).Inc()
}

// InstanceFinished учитывает завершение экземпляра.
func (m *Metrics) InstanceFinished(stage string, status domain.InstanceStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.running.WithLabelValues(stage).Dec()
	m.instances.WithLabelValues(stage, string(status)).Inc()
	m.instanceDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished учитывает завершение run.
func (m *Metrics) RunFinished(status domain.RunStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	m.runDuration.Observe(d.Seconds())
}

// Handler возвращает HTTP handler для /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
