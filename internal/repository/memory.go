package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

// MemoryTicketGateway is an in-memory TicketGateway used in tests and for
// embedding the engine without a database.
type MemoryTicketGateway struct {
	mu               sync.RWMutex
	tickets          map[int64]*models.Ticket
	statuses         map[string]*models.StatusPolicy
	calendars        map[string]*models.WorkCalendar
	contractCalendar map[int64]string
	policies         map[int64][]*models.SlaPolicy
	annotations      []models.Annotation
	events           []models.ClassificationEvent
	emails           []QueuedEmail
	nextAnnotationID int64
	now              func() time.Time
}

type QueuedEmail struct {
	Recipient string
	Subject   string
	Body      string
	QueuedAt  time.Time
}

// NewMemoryTicketGateway creates an empty in-memory gateway.
func NewMemoryTicketGateway() *MemoryTicketGateway {
	return &MemoryTicketGateway{
		tickets:          make(map[int64]*models.Ticket),
		statuses:         make(map[string]*models.StatusPolicy),
		calendars:        make(map[string]*models.WorkCalendar),
		contractCalendar: make(map[int64]string),
		policies:         make(map[int64][]*models.SlaPolicy),
		nextAnnotationID: 1,
		now:              time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (g *MemoryTicketGateway) SetNow(fn func() time.Time) { g.now = fn }

// PutTicket stores or replaces a ticket.
func (g *MemoryTicketGateway) PutTicket(t *models.Ticket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := *t
	g.tickets[t.ID] = &copied
}

// PutStatus registers a status policy.
func (g *MemoryTicketGateway) PutStatus(p models.StatusPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[p.Status] = &p
}

// PutCalendar registers a calendar.
func (g *MemoryTicketGateway) PutCalendar(c *models.WorkCalendar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calendars[c.ID] = c
}

// LinkContract binds a contract to a calendar ("" = contract without one)
// and its SLA policies.
func (g *MemoryTicketGateway) LinkContract(contractID int64, calendarID string, policies ...*models.SlaPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contractCalendar[contractID] = calendarID
	g.policies[contractID] = policies
}

// Annotations returns a copy of the stored annotations for a ticket.
func (g *MemoryTicketGateway) Annotations(ticketID int64) []models.Annotation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.Annotation
	for _, a := range g.annotations {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out
}

// Emails returns the queued outbound messages.
func (g *MemoryTicketGateway) Emails() []QueuedEmail {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]QueuedEmail(nil), g.emails...)
}

// GetTicket implements TicketGateway.
func (g *MemoryTicketGateway) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

// UpdateTicketFields implements TicketGateway.
func (g *MemoryTicketGateway) UpdateTicketFields(ctx context.Context, id int64, fields map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tickets[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range fields {
		switch field {
		case "response_due_at":
			t.ResponseDueAt = toTimePtr(value)
		case "solution_due_at":
			t.SolutionDueAt = toTimePtr(value)
		case "priority":
			t.Priority, _ = value.(string)
		case "status":
			t.Status, _ = value.(string)
		case "assignee_id":
			switch v := value.(type) {
			case int64:
				t.AssigneeID = &v
			case *int64:
				t.AssigneeID = v
			case nil:
				t.AssigneeID = nil
			}
		case "tags":
			tags, _ := value.([]string)
			t.Tags = tags
		default:
			return fmt.Errorf("update ticket %d: field %q not writable", id, field)
		}
	}
	t.UpdatedAt = g.now()
	return nil
}

func toTimePtr(value any) *time.Time {
	switch v := value.(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

// AppendAnnotation implements TicketGateway.
func (g *MemoryTicketGateway) AppendAnnotation(ctx context.Context, ticketID int64, content string, internal bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tickets[ticketID]; !ok {
		return ErrNotFound
	}
	g.annotations = append(g.annotations, models.Annotation{
		ID:        g.nextAnnotationID,
		TicketID:  ticketID,
		Content:   content,
		Internal:  internal,
		CreatedAt: g.now(),
	})
	g.nextAnnotationID++
	return nil
}

// ListNonTerminalTicketsWithSolutionDeadlineBefore implements TicketGateway.
func (g *MemoryTicketGateway) ListNonTerminalTicketsWithSolutionDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*models.Ticket, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*models.Ticket
	for _, t := range g.tickets {
		if g.isTerminalLocked(t.Status) {
			continue
		}
		if t.SolutionDueAt == nil || t.SolutionDueAt.After(cutoff) {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SolutionDueAt.Before(*out[j].SolutionDueAt)
	})
	return out, nil
}

// ListAllNonTerminalTickets implements TicketGateway.
func (g *MemoryTicketGateway) ListAllNonTerminalTickets(ctx context.Context) ([]*models.Ticket, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*models.Ticket
	for _, t := range g.tickets {
		if g.isTerminalLocked(t.Status) {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *MemoryTicketGateway) isTerminalLocked(status string) bool {
	if p, ok := g.statuses[status]; ok {
		return p.IsTerminal
	}
	return false
}

// GetContractCalendarAndPolicies implements TicketGateway.
func (g *MemoryTicketGateway) GetContractCalendarAndPolicies(ctx context.Context, contractID int64) (*models.WorkCalendar, []*models.SlaPolicy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	calendarID, ok := g.contractCalendar[contractID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	var calendar *models.WorkCalendar
	if calendarID != "" {
		calendar = g.calendars[calendarID]
	}
	return calendar, append([]*models.SlaPolicy(nil), g.policies[contractID]...), nil
}

// GetCalendar implements TicketGateway.
func (g *MemoryTicketGateway) GetCalendar(ctx context.Context, calendarID string) (*models.WorkCalendar, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.calendars[calendarID]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// GetStatusPolicy implements TicketGateway.
func (g *MemoryTicketGateway) GetStatusPolicy(ctx context.Context, status string) (*models.StatusPolicy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.statuses[status]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

// RecordEvent implements TicketGateway.
func (g *MemoryTicketGateway) RecordEvent(ctx context.Context, ev models.ClassificationEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev)
	return nil
}

// HasRecentEvent implements TicketGateway.
func (g *MemoryTicketGateway) HasRecentEvent(ctx context.Context, ticketID int64, kind models.EventKind, dueType models.DueType, since time.Time) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ev := range g.events {
		if ev.TicketID == ticketID && ev.Kind == kind && ev.DueType == dueType && ev.DetectedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// EnqueueEmail implements TicketGateway.
func (g *MemoryTicketGateway) EnqueueEmail(ctx context.Context, recipient, subject, body string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emails = append(g.emails, QueuedEmail{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		QueuedAt:  g.now(),
	})
	return nil
}

// MemoryTriggerStore is an in-memory TriggerStore for tests.
type MemoryTriggerStore struct {
	mu       sync.RWMutex
	triggers []*models.AutomationTrigger
}

// NewMemoryTriggerStore creates an empty trigger store.
func NewMemoryTriggerStore(triggers ...*models.AutomationTrigger) *MemoryTriggerStore {
	return &MemoryTriggerStore{triggers: triggers}
}

// Add registers a trigger.
func (s *MemoryTriggerStore) Add(t *models.AutomationTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
}

// ListActiveTriggers implements TriggerStore.
func (s *MemoryTriggerStore) ListActiveTriggers(ctx context.Context, triggerType models.TriggerType) ([]*models.AutomationTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AutomationTrigger
	for _, t := range s.triggers {
		if t.IsActive && t.TriggerType == triggerType {
			out = append(out, t)
		}
	}
	return out, nil
}
