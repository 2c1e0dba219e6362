// Package metrics exposes Prometheus metrics for processed jobs.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/basel-ax/stylemesh/internal/domain"
)

// Collector records job counts and durations
type Collector struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// NewCollector registers the job metrics on reg
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		jobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of jobs handled",
			},
			[]string{"action", "status"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Job duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"action"},
		),
		jobErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_errors_total",
				Help:      "Total number of failed jobs by error type",
			},
			[]string{"action", "error_type"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_flight",
				Help:      "Number of jobs currently being handled",
			},
		),
	}
}

// actionLabel keeps label cardinality bounded for unknown actions
func actionLabel(action string) string {
	for _, a := range domain.AvailableActions() {
		if a == action {
			return a
		}
	}
	return "unknown"
}

// JobStarted increments the in-flight gauge
func (c *Collector) JobStarted() {
	c.inFlight.Inc()
}

// ObserveJob records a finished job
func (c *Collector) ObserveJob(_ context.Context, job domain.Job, res domain.Result, d time.Duration) error {
	action := actionLabel(job.Input.Action)
	c.inFlight.Dec()
	c.jobsTotal.WithLabelValues(action, res.Status).Inc()
	c.jobDuration.WithLabelValues(action).Observe(d.Seconds())
	if res.Status == domain.StatusError {
		c.jobErrors.WithLabelValues(action, string(res.ErrorType)).Inc()
	}
	return nil
}
