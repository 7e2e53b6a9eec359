// Package metrics exposes Prometheus counters for the queue worker. The
// heartbeat row in the database stays the authoritative liveness signal;
// these are for dashboards and rate alerts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	jobsProcessed *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobsPending   *prometheus.GaugeVec
	jobLatency    prometheus.Histogram
}

// NewCollector registers on its own registry so independent worker
// instances in one process (tests) never collide.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_processed_total",
			Help: "Jobs brought to a completed state, per queue",
		}, []string{"queue"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Job attempts that ended in error, per queue",
		}, []string{"queue"}),
		jobsPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_jobs_pending",
			Help: "Pending jobs observed at the last poll, per queue",
		}, []string{"queue"}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_job_latency_seconds",
			Help:    "Wall time of one job attempt",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(c.jobsProcessed, c.jobsFailed, c.jobsPending, c.jobLatency)
	return c
}

func (c *Collector) RecordProcessed(queue string, latencySeconds float64) {
	c.jobsProcessed.WithLabelValues(queue).Inc()
	c.jobLatency.Observe(latencySeconds)
}

func (c *Collector) RecordFailed(queue string) {
	c.jobsFailed.WithLabelValues(queue).Inc()
}

func (c *Collector) SetPending(queue string, n int64) {
	c.jobsPending.WithLabelValues(queue).Set(float64(n))
}

// Handler serves this collector's metrics in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
