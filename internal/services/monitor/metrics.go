package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	scans    prometheus.Counter
	scanned  prometheus.Counter
	warnings prometheus.Counter
	breaches prometheus.Counter
	failures prometheus.Counter
}

var (
	metricsOnce sync.Once
	global      *metrics
)

func scanMetrics() *metrics {
	metricsOnce.Do(func() {
		global = &metrics{
			scans: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_monitor_scans_total",
				Help: "Total number of completed monitor scans",
			}),
			scanned: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_monitor_tickets_scanned_total",
				Help: "Total number of tickets classified during scans",
			}),
			warnings: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_monitor_warnings_total",
				Help: "Total number of warning events emitted",
			}),
			breaches: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_monitor_breaches_total",
				Help: "Total number of breach events emitted",
			}),
			failures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "slacore_monitor_failures_total",
				Help: "Total number of per-ticket evaluation failures",
			}),
		}
	})
	return global
}

func (m *metrics) observe(stats ScanStats) {
	m.scans.Inc()
	m.scanned.Add(float64(stats.Scanned))
	m.warnings.Add(float64(stats.Warnings))
	m.breaches.Add(float64(stats.Breaches))
	m.failures.Add(float64(stats.Failures))
}
