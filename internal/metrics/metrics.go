package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	QueueDepth      prometheus.Gauge
	JobsTotal       *prometheus.CounterVec
	ProgressEdits   prometheus.Counter
	SessionsExpired prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tgdl_queue_depth",
			Help: "Number of jobs waiting in the download queue.",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgdl_jobs_total",
			Help: "Jobs by terminal outcome.",
		}, []string{"outcome"}),
		ProgressEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tgdl_progress_edits_total",
			Help: "Outward progress message edits.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tgdl_sessions_expired_total",
			Help: "Selection sessions evicted past their TTL.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.QueueDepth,
		m.JobsTotal,
		m.ProgressEdits,
		m.SessionsExpired,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
