package scheduler

import (
	"strconv"
	"strings"

	"github.com/servicedesk-io/slacore/internal/models"
)

// Handler names the engine binds implementations to.
const (
	HandlerMonitorScan = "sla.monitorScan"
	HandlerTimeScan    = "automation.timeScan"
)

// Job slugs for the built-in schedule.
const (
	JobMonitorScan = "sla-monitor-scan"
	JobTimeScan    = "automation-time-scan"
)

func defaultJobs() []*models.ScheduledJob {
	return []*models.ScheduledJob{
		{
			Name:           "SLA Monitor Scan",
			Slug:           JobMonitorScan,
			Handler:        HandlerMonitorScan,
			Schedule:       "@every 5m",
			TimeoutSeconds: 240,
			RunOnStartup:   true,
			Config:         map[string]any{},
		},
		{
			Name:           "Automation Time Scan",
			Slug:           JobTimeScan,
			Handler:        HandlerTimeScan,
			Schedule:       "@every 5m",
			TimeoutSeconds: 240,
			Config:         map[string]any{},
		},
	}
}

// DefaultJobs returns a cloned copy of the built-in scheduled jobs.
func DefaultJobs() []*models.ScheduledJob {
	jobs := defaultJobs()
	out := make([]*models.ScheduledJob, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, job.Clone())
	}
	return out
}

// IntFromConfig reads an integer job setting, tolerating the numeric and
// string shapes a JSON or YAML config layer produces.
func IntFromConfig(cfg map[string]any, key string, def int) int {
	if cfg == nil {
		return def
	}
	val, ok := cfg[key]
	if !ok {
		return def
	}
	switch v := val.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return def
}
