package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/servicedesk-io/slacore/internal/models"
)

// SQLTicketGateway implements TicketGateway against the platform's database.
type SQLTicketGateway struct {
	db              *sqlx.DB
	defaultTimezone *time.Location
	now             func() time.Time
}

// NewSQLTicketGateway wires a gateway around the shared connection.
// defaultTimezone applies to calendars stored without a timezone; nil means
// UTC.
func NewSQLTicketGateway(db *sqlx.DB, defaultTimezone *time.Location) *SQLTicketGateway {
	if defaultTimezone == nil {
		defaultTimezone = time.UTC
	}
	return &SQLTicketGateway{db: db, defaultTimezone: defaultTimezone, now: time.Now}
}

type ticketRow struct {
	ID            int64      `db:"id"`
	Subject       string     `db:"subject"`
	Status        string     `db:"status"`
	Priority      string     `db:"priority"`
	QueueID       int64      `db:"queue_id"`
	ContractID    *int64     `db:"contract_id"`
	AssigneeID    *int64     `db:"assignee_id"`
	Tags          string     `db:"tags"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	ResponseDueAt *time.Time `db:"response_due_at"`
	SolutionDueAt *time.Time `db:"solution_due_at"`
}

func (r ticketRow) toModel() *models.Ticket {
	t := &models.Ticket{
		ID:            r.ID,
		Subject:       r.Subject,
		Status:        r.Status,
		Priority:      r.Priority,
		QueueID:       r.QueueID,
		ContractID:    r.ContractID,
		AssigneeID:    r.AssigneeID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		ResponseDueAt: r.ResponseDueAt,
		SolutionDueAt: r.SolutionDueAt,
	}
	if r.Tags != "" {
		t.Tags = strings.Split(r.Tags, ",")
	}
	return t
}

const ticketColumns = "id, subject, status, priority, queue_id, contract_id, assignee_id, tags, created_at, updated_at, response_due_at, solution_due_at"

// GetTicket loads a single ticket by id.
func (g *SQLTicketGateway) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	query := g.db.Rebind(`SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`)
	var row ticketRow
	err := g.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return row.toModel(), nil
}

// Columns the engine is allowed to write. Everything else belongs to the
// ticket platform.
var writableTicketFields = map[string]string{
	"response_due_at": "response_due_at",
	"solution_due_at": "solution_due_at",
	"priority":        "priority",
	"status":          "status",
	"assignee_id":     "assignee_id",
	"tags":            "tags",
}

// UpdateTicketFields writes a partial update of the whitelisted columns in a
// single statement, bumping updated_at alongside.
func (g *SQLTicketGateway) UpdateTicketFields(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var setClauses []string
	var args []any
	for field, value := range fields {
		column, ok := writableTicketFields[field]
		if !ok {
			return fmt.Errorf("update ticket %d: field %q not writable", id, field)
		}
		if tags, ok := value.([]string); ok {
			value = strings.Join(tags, ",")
		}
		setClauses = append(setClauses, column+" = ?")
		args = append(args, value)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, g.now().UTC(), id)

	query := g.db.Rebind(fmt.Sprintf(
		"UPDATE tickets SET %s WHERE id = ?", strings.Join(setClauses, ", ")))
	res, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update ticket %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAnnotation attaches an audit or alert note to a ticket.
func (g *SQLTicketGateway) AppendAnnotation(ctx context.Context, ticketID int64, content string, internal bool) error {
	query := g.db.Rebind(`
		INSERT INTO annotations (ticket_id, content, internal, created_at)
		VALUES (?, ?, ?, ?)`)
	if _, err := g.db.ExecContext(ctx, query, ticketID, content, internal, g.now().UTC()); err != nil {
		return fmt.Errorf("append annotation to ticket %d: %w", ticketID, err)
	}
	return nil
}

// ListNonTerminalTicketsWithSolutionDeadlineBefore selects the at-risk set
// the monitor classifies each cycle.
func (g *SQLTicketGateway) ListNonTerminalTicketsWithSolutionDeadlineBefore(ctx context.Context, cutoff time.Time) ([]*models.Ticket, error) {
	query := g.db.Rebind(`
		SELECT t.` + strings.ReplaceAll(ticketColumns, ", ", ", t.") + `
		FROM tickets t
		JOIN statuses s ON s.status = t.status
		WHERE s.is_terminal = ?
		  AND t.solution_due_at IS NOT NULL
		  AND t.solution_due_at <= ?
		ORDER BY t.solution_due_at ASC
		LIMIT 1000`)
	return g.listTickets(ctx, query, false, cutoff.UTC())
}

// ListAllNonTerminalTickets returns every open ticket for the time-based
// automation scan.
func (g *SQLTicketGateway) ListAllNonTerminalTickets(ctx context.Context) ([]*models.Ticket, error) {
	query := g.db.Rebind(`
		SELECT t.` + strings.ReplaceAll(ticketColumns, ", ", ", t.") + `
		FROM tickets t
		JOIN statuses s ON s.status = t.status
		WHERE s.is_terminal = ?
		ORDER BY t.id
		LIMIT 5000`)
	return g.listTickets(ctx, query, false)
}

func (g *SQLTicketGateway) listTickets(ctx context.Context, query string, args ...any) ([]*models.Ticket, error) {
	var rows []ticketRow
	if err := g.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets := make([]*models.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.toModel())
	}
	return tickets, nil
}

// GetContractCalendarAndPolicies resolves the contract's calendar and its
// SLA policy rows. A contract without a calendar yields a nil calendar, not
// an error; the resolver decides whether a fallback applies.
func (g *SQLTicketGateway) GetContractCalendarAndPolicies(ctx context.Context, contractID int64) (*models.WorkCalendar, []*models.SlaPolicy, error) {
	var calendarID sql.NullString
	query := g.db.Rebind(`SELECT calendar_id FROM contracts WHERE id = ?`)
	err := g.db.GetContext(ctx, &calendarID, query, contractID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get contract %d: %w", contractID, err)
	}

	var calendar *models.WorkCalendar
	if calendarID.Valid && calendarID.String != "" {
		calendar, err = g.GetCalendar(ctx, calendarID.String)
		if err != nil && err != ErrNotFound {
			return nil, nil, err
		}
	}

	var policies []*models.SlaPolicy
	query = g.db.Rebind(`
		SELECT id, contract_id, priority, response_time_minutes, solution_time_minutes
		FROM sla_policies WHERE contract_id = ?
		ORDER BY id`)
	if err := g.db.SelectContext(ctx, &policies, query, contractID); err != nil {
		return nil, nil, fmt.Errorf("get policies for contract %d: %w", contractID, err)
	}

	return calendar, policies, nil
}

// GetCalendar loads a calendar with its weekday windows and holiday dates.
func (g *SQLTicketGateway) GetCalendar(ctx context.Context, calendarID string) (*models.WorkCalendar, error) {
	var header struct {
		ID       string         `db:"id"`
		Name     string         `db:"name"`
		Timezone sql.NullString `db:"timezone"`
	}
	query := g.db.Rebind(`SELECT id, name, timezone FROM calendars WHERE id = ?`)
	err := g.db.GetContext(ctx, &header, query, calendarID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar %s: %w", calendarID, err)
	}

	loc := g.defaultTimezone
	if header.Timezone.Valid && header.Timezone.String != "" {
		loc, err = time.LoadLocation(header.Timezone.String)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: bad timezone %q: %w", calendarID, header.Timezone.String, err)
		}
	}
	calendar := models.NewWorkCalendar(header.ID, header.Name, loc)

	var windows []struct {
		Weekday     int `db:"weekday"`
		StartMinute int `db:"start_minute"`
		EndMinute   int `db:"end_minute"`
	}
	query = g.db.Rebind(`
		SELECT weekday, start_minute, end_minute
		FROM calendar_windows WHERE calendar_id = ?`)
	if err := g.db.SelectContext(ctx, &windows, query, calendarID); err != nil {
		return nil, fmt.Errorf("get calendar %s windows: %w", calendarID, err)
	}
	for _, w := range windows {
		calendar.SetWindow(time.Weekday(w.Weekday), w.StartMinute, w.EndMinute)
	}

	var holidays []struct {
		Date time.Time `db:"holiday_date"`
		Name string    `db:"name"`
	}
	query = g.db.Rebind(`
		SELECT holiday_date, name
		FROM calendar_holidays WHERE calendar_id = ?`)
	if err := g.db.SelectContext(ctx, &holidays, query, calendarID); err != nil {
		return nil, fmt.Errorf("get calendar %s holidays: %w", calendarID, err)
	}
	for _, h := range holidays {
		calendar.AddHoliday(h.Date, h.Name)
	}

	if err := calendar.Validate(); err != nil {
		return nil, err
	}
	return calendar, nil
}

// GetStatusPolicy returns the SLA semantics of a status.
func (g *SQLTicketGateway) GetStatusPolicy(ctx context.Context, status string) (*models.StatusPolicy, error) {
	query := g.db.Rebind(`
		SELECT status, pauses_sla, is_terminal FROM statuses WHERE status = ?`)
	var policy models.StatusPolicy
	err := g.db.GetContext(ctx, &policy, query, status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status policy %q: %w", status, err)
	}
	return &policy, nil
}

// RecordEvent persists a structured escalation event. The event row, not the
// annotation text, is what dedup checks consult.
func (g *SQLTicketGateway) RecordEvent(ctx context.Context, ev models.ClassificationEvent) error {
	query := g.db.Rebind(`
		INSERT INTO sla_events (id, ticket_id, kind, due_type, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := g.db.ExecContext(ctx, query,
		ev.ID, ev.TicketID, string(ev.Kind), string(ev.DueType), ev.DetectedAt.UTC()); err != nil {
		return fmt.Errorf("record event for ticket %d: %w", ev.TicketID, err)
	}
	return nil
}

// HasRecentEvent reports whether an equivalent event exists since the cutoff.
func (g *SQLTicketGateway) HasRecentEvent(ctx context.Context, ticketID int64, kind models.EventKind, dueType models.DueType, since time.Time) (bool, error) {
	query := g.db.Rebind(`
		SELECT 1 FROM sla_events
		WHERE ticket_id = ? AND kind = ? AND due_type = ? AND created_at > ?
		LIMIT 1`)
	var exists int
	err := g.db.GetContext(ctx, &exists, query, ticketID, string(kind), string(dueType), since.UTC())
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check recent events for ticket %d: %w", ticketID, err)
	}
	return true, nil
}

// EnqueueEmail inserts into the platform's outbound mail queue.
func (g *SQLTicketGateway) EnqueueEmail(ctx context.Context, recipient, subject, body string) error {
	query := g.db.Rebind(`
		INSERT INTO email_queue (recipient, subject, body, created_at)
		VALUES (?, ?, ?, ?)`)
	if _, err := g.db.ExecContext(ctx, query, recipient, subject, body, g.now().UTC()); err != nil {
		return fmt.Errorf("enqueue email to %s: %w", recipient, err)
	}
	return nil
}
