// Package dispatch executes the side effects of an SLA classification:
// audit annotations, breach escalation and event bookkeeping, exactly once
// per distinct event within the dedup window.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/servicedesk-io/slacore/internal/cache"
	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithCache enables the Redis fast path for dedup checks. The structured
// event rows remain authoritative; the cache only short-circuits the common
// case across scan cycles.
func WithCache(c *cache.RedisCache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithEscalationPriority overrides the priority breached tickets are raised
// to (default critical).
func WithEscalationPriority(priority string) Option {
	return func(d *Dispatcher) { d.escalationPriority = priority }
}

// WithFollowUp registers a callback invoked after an event survived dedup and
// all its side effects were applied. Suppressed duplicates never reach it.
func WithFollowUp(fn func(context.Context, models.ClassificationEvent)) Option {
	return func(d *Dispatcher) { d.followUp = fn }
}

// Dispatcher applies annotations and escalations for classification events.
type Dispatcher struct {
	gateway            repository.TicketGateway
	cache              *cache.RedisCache
	dedupWindow        time.Duration
	escalationPriority string
	followUp           func(context.Context, models.ClassificationEvent)
	logger             *log.Logger
	now                func() time.Time
}

// New creates a dispatcher. dedupWindow is the trailing window in which an
// equivalent event for the same ticket is suppressed.
func New(gateway repository.TicketGateway, dedupWindow time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gateway:            gateway,
		dedupWindow:        dedupWindow,
		escalationPriority: models.PriorityCritical,
		logger:             log.Default(),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one classification event. Equivalent events (same
// ticket, kind and due type) inside the dedup window are dropped so a
// 5-minute scan cadence cannot flood a multi-hour breach with duplicate
// alerts. Two near-simultaneous scans can still race past the check; the
// rare duplicate annotation that produces is harmless and bounded by the
// scan period.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.ClassificationEvent) error {
	fresh, err := d.passedDedup(ctx, ev)
	if err != nil {
		return err
	}
	if !fresh {
		d.logger.Printf("dispatch: suppressed duplicate %s/%s for ticket %d", ev.Kind, ev.DueType, ev.TicketID)
		return nil
	}

	if err := d.apply(ctx, ev); err != nil {
		// Drop the cache mark so the retry on the next scan is not
		// suppressed by this failed attempt.
		_ = d.cache.Delete(ctx, d.dedupKey(ev))
		return err
	}

	if d.followUp != nil {
		d.followUp(ctx, ev)
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, ev models.ClassificationEvent) error {
	if err := d.gateway.AppendAnnotation(ctx, ev.TicketID, d.annotationFor(ev), true); err != nil {
		return fmt.Errorf("dispatch: annotate ticket %d: %w", ev.TicketID, err)
	}

	if ev.Kind == models.EventBreach {
		if err := d.escalate(ctx, ev); err != nil {
			return err
		}
	}

	// Recorded after the side effects so a failed dispatch is retried on
	// the next scan instead of being silently lost.
	if err := d.gateway.RecordEvent(ctx, ev); err != nil {
		return fmt.Errorf("dispatch: record event for ticket %d: %w", ev.TicketID, err)
	}
	return nil
}

func (d *Dispatcher) dedupKey(ev models.ClassificationEvent) string {
	return fmt.Sprintf("dedup:%d:%s:%s", ev.TicketID, ev.Kind, ev.DueType)
}

// passedDedup reports whether the event survives deduplication. The Redis
// SETNX mark is the cheap first gate; the structured sla_events rows are the
// authoritative check and the only one when no cache is configured.
func (d *Dispatcher) passedDedup(ctx context.Context, ev models.ClassificationEvent) (bool, error) {
	if ok, err := d.cache.SetNX(ctx, d.dedupKey(ev), ev.ID, d.dedupWindow); err != nil {
		d.logger.Printf("dispatch: dedup cache unavailable: %v", err)
	} else if !ok {
		return false, nil
	}

	since := d.now().Add(-d.dedupWindow)
	recent, err := d.gateway.HasRecentEvent(ctx, ev.TicketID, ev.Kind, ev.DueType, since)
	if err != nil {
		return false, fmt.Errorf("dispatch: dedup check for ticket %d: %w", ev.TicketID, err)
	}
	return !recent, nil
}

func (d *Dispatcher) annotationFor(ev models.ClassificationEvent) string {
	switch ev.Kind {
	case models.EventBreach:
		return fmt.Sprintf("SLA breach: %s deadline exceeded by %s.", ev.DueType, formatDuration(ev.Overdue))
	default:
		return fmt.Sprintf("SLA warning: %s deadline due in %s.", ev.DueType, formatDuration(-ev.Overdue))
	}
}

// escalate raises the ticket to the maximum severity unless it is already
// there, recording the change alongside.
func (d *Dispatcher) escalate(ctx context.Context, ev models.ClassificationEvent) error {
	ticket, err := d.gateway.GetTicket(ctx, ev.TicketID)
	if err != nil {
		return fmt.Errorf("dispatch: load ticket %d for escalation: %w", ev.TicketID, err)
	}
	if models.PriorityRank(ticket.Priority) >= models.PriorityRank(d.escalationPriority) {
		return nil
	}

	err = d.gateway.UpdateTicketFields(ctx, ev.TicketID, map[string]any{
		"priority": d.escalationPriority,
	})
	if err != nil {
		return fmt.Errorf("dispatch: escalate ticket %d: %w", ev.TicketID, err)
	}

	note := fmt.Sprintf("Priority raised from %s to %s after SLA breach.", ticket.Priority, d.escalationPriority)
	if err := d.gateway.AppendAnnotation(ctx, ev.TicketID, note, true); err != nil {
		return fmt.Errorf("dispatch: record escalation on ticket %d: %w", ev.TicketID, err)
	}
	d.logger.Printf("dispatch: ticket %d escalated to %s (%s/%s breach)", ev.TicketID, d.escalationPriority, ev.DueType, ev.Kind)
	return nil
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	if hours > 0 {
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
