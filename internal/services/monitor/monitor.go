package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
	"github.com/servicedesk-io/slacore/internal/services/calendar"
)

// EventSink receives the warning/breach events a scan produces. The
// dispatcher implements it.
type EventSink interface {
	Dispatch(ctx context.Context, ev models.ClassificationEvent) error
}

// Option configures the monitor.
type Option func(*Monitor)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithNowFunc sets a custom time function (for testing).
func WithNowFunc(fn func() time.Time) Option {
	return func(m *Monitor) { m.now = fn }
}

// WithBusinessHoursOnly restricts alerting to the ticket calendar's working
// hours; at-risk tickets found outside them are picked up by a later scan.
func WithBusinessHoursOnly(resolver *calendar.Resolver) Option {
	return func(m *Monitor) { m.resolver = resolver }
}

// Monitor scans open tickets with an approaching or passed solution deadline
// and hands warning/breach events to the sink.
type Monitor struct {
	gateway       repository.TicketGateway
	sink          EventSink
	warningWindow time.Duration
	resolver      *calendar.Resolver
	logger        *log.Logger
	now           func() time.Time

	scheduled atomic.Bool
	running   atomic.Bool
}

// ScanStats summarizes one scan run.
type ScanStats struct {
	Scanned  int
	Warnings int
	Breaches int
	Excluded int
	Failures int
}

// Health reports the monitor's scheduling state to the platform's health
// endpoint.
type Health struct {
	IsScheduled        bool `json:"is_scheduled"`
	IsCurrentlyRunning bool `json:"is_currently_running"`
}

// New creates a monitor.
func New(gateway repository.TicketGateway, sink EventSink, warningWindow time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		gateway:       gateway,
		sink:          sink,
		warningWindow: warningWindow,
		logger:        log.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetScheduled records whether a scheduler currently owns the monitor.
func (m *Monitor) SetScheduled(v bool) { m.scheduled.Store(v) }

// Health returns the current scheduling and run state.
func (m *Monitor) Health() Health {
	return Health{
		IsScheduled:        m.scheduled.Load(),
		IsCurrentlyRunning: m.running.Load(),
	}
}

// ScanOnce performs a single scan: it pulls the bounded at-risk set
// (solution deadline within the warning window, non-terminal status),
// classifies each ticket fresh and emits events for warnings and breaches.
// A failure on one ticket never aborts the rest of the batch.
func (m *Monitor) ScanOnce(ctx context.Context) (ScanStats, error) {
	m.running.Store(true)
	defer m.running.Store(false)

	now := m.now()
	cutoff := now.Add(m.warningWindow)

	tickets, err := m.gateway.ListNonTerminalTicketsWithSolutionDeadlineBefore(ctx, cutoff)
	if err != nil {
		return ScanStats{}, fmt.Errorf("monitor: list at-risk tickets: %w", err)
	}

	var stats ScanStats
	for _, ticket := range tickets {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++

		if err := m.evaluate(ctx, ticket, now, &stats); err != nil {
			stats.Failures++
			m.logger.Printf("monitor: ticket %d: %v", ticket.ID, err)
		}
	}

	m.logger.Printf("monitor: scan complete, %d scanned, %d warning(s), %d breach(es), %d excluded, %d failure(s)",
		stats.Scanned, stats.Warnings, stats.Breaches, stats.Excluded, stats.Failures)
	scanMetrics().observe(stats)
	return stats, nil
}

func (m *Monitor) evaluate(ctx context.Context, ticket *models.Ticket, now time.Time, stats *ScanStats) error {
	status, err := m.gateway.GetStatusPolicy(ctx, ticket.Status)
	if errors.Is(err, repository.ErrNotFound) {
		// Unknown status: evaluate as a plain active status.
		status = nil
	} else if err != nil {
		return err
	}

	classification := Classify(ticket, status, now, m.warningWindow)
	switch classification.State {
	case StateExcluded:
		stats.Excluded++
		return nil
	case StateOnTrack:
		return nil
	}

	if m.resolver != nil && ticket.ContractID != nil {
		workCalendar, err := m.resolver.ForContract(ctx, *ticket.ContractID)
		if err == nil && !calendar.IsWorkingTime(workCalendar, now) {
			stats.Excluded++
			return nil
		}
	}

	var kind models.EventKind
	switch classification.State {
	case StateWarning:
		kind = models.EventWarning
		stats.Warnings++
	case StateBreach:
		kind = models.EventBreach
		stats.Breaches++
	}

	event := models.NewClassificationEvent(ticket.ID, kind, classification.DueType, classification.Overdue, now)
	if err := m.sink.Dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch %s/%s: %w", kind, classification.DueType, err)
	}
	return nil
}
