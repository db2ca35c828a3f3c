// Package metrics exposes job and probe counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lvcoi/ytdl-web/internal/jobs"
)

const namespace = "ytdl_web"

// Collector owns a private registry so tests and multiple servers never
// collide on the default one.
type Collector struct {
	registry *prometheus.Registry

	submitted     prometheus.Counter
	completed     *prometheus.CounterVec
	inProgress    prometheus.Gauge
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Download jobs accepted.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Download jobs that reached a terminal state, by status.",
		}, []string{"status"}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_progress",
			Help:      "Download jobs not yet finished or failed.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "format_probes_total",
			Help:      "Format listing probes, by result.",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "format_probe_duration_seconds",
			Help:      "Latency of format listing probes.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 180},
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.submitted,
		c.completed,
		c.inProgress,
		c.probes,
		c.probeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// JobChanged implements jobs.Observer. The store guarantees one starting
// and at most one terminal notification per job.
func (c *Collector) JobChanged(rec jobs.Record) {
	switch {
	case rec.Status == jobs.StatusStarting:
		c.submitted.Inc()
		c.inProgress.Inc()
	case rec.Status.IsTerminal():
		c.completed.WithLabelValues(string(rec.Status)).Inc()
		c.inProgress.Dec()
	}
}

// ObserveProbe implements formats.ProbeRecorder.
func (c *Collector) ObserveProbe(ok bool, elapsed time.Duration) {
	result := "error"
	if ok {
		result = "ok"
	}
	c.probes.WithLabelValues(result).Inc()
	c.probeDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
