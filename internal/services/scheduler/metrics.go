package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runs     prometheus.Counter
	failures prometheus.Counter
	skips    prometheus.Counter
	duration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	global      *metrics
)

func jobMetrics() *metrics {
	metricsOnce.Do(func() {
		global = &metrics{
			runs: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_scheduler_runs_total",
				Help: "Total number of completed job runs",
			}),
			failures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_scheduler_failures_total",
				Help: "Total number of failed job runs",
			}),
			skips: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_scheduler_skips_total",
				Help: "Total number of firings skipped because the previous run was still active",
			}),
			duration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "slacore_scheduler_run_duration_seconds",
				Help:    "Job run duration in seconds",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return global
}

func (m *metrics) observe(status string, duration time.Duration) {
	switch status {
	case statusSkipped:
		m.skips.Inc()
		return
	case statusFailed:
		m.failures.Inc()
	}
	m.runs.Inc()
	m.duration.Observe(duration.Seconds())
}
