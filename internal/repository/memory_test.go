package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk-io/slacore/internal/models"
)

func TestUpdateTicketFieldsWhitelist(t *testing.T) {
	gw := NewMemoryTicketGateway()
	gw.PutTicket(&models.Ticket{ID: 1, Status: "open", Priority: models.PriorityNormal})
	ctx := context.Background()

	due := time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC)
	err := gw.UpdateTicketFields(ctx, 1, map[string]any{
		"priority":        models.PriorityHigh,
		"solution_due_at": due,
	})
	require.NoError(t, err)

	ticket, err := gw.GetTicket(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, ticket.Priority)
	require.NotNil(t, ticket.SolutionDueAt)
	assert.True(t, ticket.SolutionDueAt.Equal(due))

	err = gw.UpdateTicketFields(ctx, 1, map[string]any{"subject": "rewritten"})
	assert.Error(t, err, "fields outside the capability surface must be rejected")

	err = gw.UpdateTicketFields(ctx, 99, map[string]any{"priority": models.PriorityLow})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNonTerminalTicketsWithSolutionDeadlineBefore(t *testing.T) {
	gw := NewMemoryTicketGateway()
	gw.PutStatus(models.StatusPolicy{Status: "closed", IsTerminal: true})
	cutoff := time.Date(2026, time.March, 2, 14, 0, 0, 0, time.UTC)

	early := cutoff.Add(-2 * time.Hour)
	late := cutoff.Add(-time.Hour)
	after := cutoff.Add(time.Hour)
	gw.PutTicket(&models.Ticket{ID: 1, Status: "open", SolutionDueAt: &late})
	gw.PutTicket(&models.Ticket{ID: 2, Status: "open", SolutionDueAt: &early})
	gw.PutTicket(&models.Ticket{ID: 3, Status: "closed", SolutionDueAt: &early})
	gw.PutTicket(&models.Ticket{ID: 4, Status: "open", SolutionDueAt: &after})
	gw.PutTicket(&models.Ticket{ID: 5, Status: "open"})

	got, err := gw.ListNonTerminalTicketsWithSolutionDeadlineBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by deadline, most overdue first.
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
}

func TestHasRecentEvent(t *testing.T) {
	gw := NewMemoryTicketGateway()
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	ev := models.NewClassificationEvent(1, models.EventBreach, models.DueSolution, time.Hour, now)
	require.NoError(t, gw.RecordEvent(ctx, ev))

	recent, err := gw.HasRecentEvent(ctx, 1, models.EventBreach, models.DueSolution, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.True(t, recent)

	recent, err = gw.HasRecentEvent(ctx, 1, models.EventBreach, models.DueSolution, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.False(t, recent)

	recent, err = gw.HasRecentEvent(ctx, 1, models.EventWarning, models.DueSolution, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.False(t, recent, "kind is part of the event identity")
}

func TestGetTicketReturnsCopy(t *testing.T) {
	gw := NewMemoryTicketGateway()
	gw.PutTicket(&models.Ticket{ID: 1, Status: "open"})

	first, err := gw.GetTicket(context.Background(), 1)
	require.NoError(t, err)
	first.Status = "mutated"

	second, err := gw.GetTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "open", second.Status)
}
