// Package repository provides the engine's data access layer: the gateway to
// the ticket platform's tables and the read-only trigger store. The engine
// owns no ticket state; every mutation it performs goes through the
// TicketGateway capability surface.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

// TicketGateway is the capability surface into the ticket platform.
type TicketGateway interface {
	// GetTicket loads a single ticket. Returns ErrNotFound when absent.
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)

	// UpdateTicketFields writes a partial update. Supported fields:
	// response_due_at, solution_due_at, priority, status, assignee_id, tags.
	UpdateTicketFields(ctx context.Context, id int64, fields map[string]any) error

	// AppendAnnotation attaches an audit or alert note to a ticket.
	AppendAnnotation(ctx context.Context, ticketID int64, content string, internal bool) error

	// ListNonTerminalTicketsWithSolutionDeadlineBefore returns open tickets
	// whose solution deadline falls before the cutoff. This keeps monitor
	// scans bounded by at-risk tickets rather than total ticket count.
	ListNonTerminalTicketsWithSolutionDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*models.Ticket, error)

	// ListAllNonTerminalTickets returns every open ticket; used by the
	// time-based automation scan.
	ListAllNonTerminalTickets(ctx context.Context) ([]*models.Ticket, error)

	// GetContractCalendarAndPolicies resolves the contract's calendar (nil
	// when the contract has none) and its SLA policies.
	GetContractCalendarAndPolicies(ctx context.Context, contractID int64) (*models.WorkCalendar, []*models.SlaPolicy, error)

	// GetCalendar loads a calendar by its identity. Returns ErrNotFound
	// when absent.
	GetCalendar(ctx context.Context, calendarID string) (*models.WorkCalendar, error)

	// GetStatusPolicy returns the SLA semantics of a status. Returns
	// ErrNotFound for unknown statuses.
	GetStatusPolicy(ctx context.Context, status string) (*models.StatusPolicy, error)

	// RecordEvent persists a structured escalation event used for
	// deduplication and audit.
	RecordEvent(ctx context.Context, ev models.ClassificationEvent) error

	// HasRecentEvent reports whether an equivalent event was recorded for
	// the ticket since the given instant.
	HasRecentEvent(ctx context.Context, ticketID int64, kind models.EventKind, dueType models.DueType, since time.Time) (bool, error)

	// EnqueueEmail hands a message to the platform's outbound mail queue.
	// Delivery is best-effort and owned by the platform.
	EnqueueEmail(ctx context.Context, recipient, subject, body string) error
}

// TriggerStore reads administrator-defined automation triggers.
type TriggerStore interface {
	// ListActiveTriggers returns active triggers of the given type in a
	// stable order.
	ListActiveTriggers(ctx context.Context, triggerType models.TriggerType) ([]*models.AutomationTrigger, error)
}
