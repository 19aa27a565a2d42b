// Package metrics exposes job outcome counters and latency for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the corpusd metric set on its own registry.
type Collector struct {
	registry *prometheus.Registry

	jobsEnqueued  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	uploadsFailed prometheus.Counter
	jobDuration   prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpusd_jobs_enqueued_total",
			Help: "Total number of jobs accepted and enqueued",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpusd_jobs_completed_total",
			Help: "Total number of jobs that reached completed",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpusd_jobs_failed_total",
			Help: "Total number of jobs that reached failed",
		}),
		uploadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpusd_uploads_failed_total",
			Help: "Total number of failed artifact upload attempts",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "corpusd_job_duration_seconds",
			Help:    "Wall time from dequeue to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
	}

	c.registry.MustRegister(
		c.jobsEnqueued,
		c.jobsCompleted,
		c.jobsFailed,
		c.uploadsFailed,
		c.jobDuration,
	)
	return c
}

func (c *Collector) JobEnqueued()  { c.jobsEnqueued.Inc() }
func (c *Collector) JobCompleted() { c.jobsCompleted.Inc() }
func (c *Collector) JobFailed()    { c.jobsFailed.Inc() }
func (c *Collector) UploadFailed() { c.uploadsFailed.Inc() }

// ObserveJobDuration records how long one job took to reach a terminal state.
func (c *Collector) ObserveJobDuration(seconds float64) {
	c.jobDuration.Observe(seconds)
}

// Handler serves the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
