// Package metrics exposes counter service metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"erpcounter/internal/infrastructure/storage/postgres"
)

const namespace = "erpcounter"

// Recorder records the outcome of every GetNextCounter call.
// It satisfies the counter service's Recorder interface.
type Recorder struct {
	registry *prometheus.Registry
	issued   *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewRecorder creates a Recorder on its own registry, with the Go and
// process collectors registered alongside.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		issued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counters_issued_total",
			Help:      "Number of document numbers issued.",
		}, []string{"sequence_code"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_failures_total",
			Help:      "Number of failed counter requests by error code.",
		}, []string{"sequence_code", "reason"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "counter_issue_duration_seconds",
			Help:      "Latency of successful counter requests.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"sequence_code"}),
	}
}

// ObserveIssued records a successfully issued number.
func (r *Recorder) ObserveIssued(sequenceCode string, elapsed time.Duration) {
	r.issued.WithLabelValues(sequenceCode).Inc()
	r.latency.WithLabelValues(sequenceCode).Observe(elapsed.Seconds())
}

// ObserveFailed records a failed request; reason is the application error code.
func (r *Recorder) ObserveFailed(sequenceCode, reason string) {
	r.failures.WithLabelValues(sequenceCode, reason).Inc()
}

// RegisterPool exports pgx pool statistics as gauges.
func (r *Recorder) RegisterPool(pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(postgres.PoolStats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(postgres.GetPoolStats(pool)) })
	}

	r.registry.MustRegister(
		gauge("total_connections", "Total connections in the pool.",
			func(s postgres.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("acquired_connections", "Connections currently in use.",
			func(s postgres.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("idle_connections", "Idle connections.",
			func(s postgres.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("max_connections", "Maximum pool size.",
			func(s postgres.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
