package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

func sampleTicket() *models.Ticket {
	contractID := int64(7)
	return &models.Ticket{
		ID:         42,
		Subject:    "Printer on fire",
		Status:     "open",
		Priority:   models.PriorityHigh,
		QueueID:    3,
		ContractID: &contractID,
		Tags:       []string{"hardware", "urgent"},
		CreatedAt:  time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestMatchConditionsSimple(t *testing.T) {
	ticket := sampleTicket()

	tests := []struct {
		name       string
		conditions map[string]any
		change     *ChangeContext
		want       bool
	}{
		{"empty map matches", map[string]any{}, nil, true},
		{"single equality", map[string]any{"status": "open"}, nil, true},
		{"conjunction", map[string]any{"status": "open", "priority": "high"}, nil, true},
		{"one mismatch fails all", map[string]any{"status": "open", "priority": "low"}, nil, false},
		{"numeric field tolerates json float", map[string]any{"queue_id": float64(3)}, nil, true},
		{"nil expects absent value", map[string]any{"assignee_id": nil}, nil, true},
		{"nil against present value", map[string]any{"contract_id": nil}, nil, false},
		{"unknown field never matches", map[string]any{"flavor": "vanilla"}, nil, false},
		{
			"previous value from change context",
			map[string]any{"previous_status": "new", "status": "open"},
			&ChangeContext{Previous: map[string]any{"status": "new"}},
			true,
		},
		{
			"previous value without context",
			map[string]any{"previous_status": "new"},
			nil,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := models.ConditionSet{Simple: tt.conditions}
			assert.Equal(t, tt.want, MatchConditions(set, ticket, tt.change))
		})
	}
}

func TestMatchConditionsAdvanced(t *testing.T) {
	ticket := sampleTicket()

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"equals", models.Condition{Field: "status", Operator: models.OpEquals, Value: "open"}, true},
		{"not_equals", models.Condition{Field: "status", Operator: models.OpNotEquals, Value: "closed"}, true},
		{"contains substring", models.Condition{Field: "subject", Operator: models.OpContains, Value: "fire"}, true},
		{"contains tag membership", models.Condition{Field: "tags", Operator: models.OpContains, Value: "urgent"}, true},
		{"not_contains", models.Condition{Field: "tags", Operator: models.OpNotContains, Value: "software"}, true},
		{"starts_with", models.Condition{Field: "subject", Operator: models.OpStartsWith, Value: "Printer"}, true},
		{"ends_with", models.Condition{Field: "subject", Operator: models.OpEndsWith, Value: "fire"}, true},
		{"greater_than", models.Condition{Field: "queue_id", Operator: models.OpGreaterThan, Value: 2}, true},
		{"greater_than false", models.Condition{Field: "queue_id", Operator: models.OpGreaterThan, Value: 3}, false},
		{"less_than", models.Condition{Field: "queue_id", Operator: models.OpLessThan, Value: 10}, true},
		{"greater_or_equal boundary", models.Condition{Field: "queue_id", Operator: models.OpGreaterOrEqual, Value: 3}, true},
		{"less_or_equal boundary", models.Condition{Field: "queue_id", Operator: models.OpLessOrEqual, Value: 3}, true},
		{"in list", models.Condition{Field: "priority", Operator: models.OpIn, Value: []any{"high", "critical"}}, true},
		{"in comma string", models.Condition{Field: "priority", Operator: models.OpIn, Value: "high, critical"}, true},
		{"not_in", models.Condition{Field: "priority", Operator: models.OpNotIn, Value: []any{"low", "normal"}}, true},
		{"exists on set pointer", models.Condition{Field: "contract_id", Operator: models.OpExists}, true},
		{"exists on nil pointer", models.Condition{Field: "assignee_id", Operator: models.OpExists}, false},
		{"not_exists on nil pointer", models.Condition{Field: "assignee_id", Operator: models.OpNotExists}, true},
		{"not_exists on unknown field", models.Condition{Field: "flavor", Operator: models.OpNotExists}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := models.ConditionSet{Advanced: []models.Condition{tt.cond}}
			assert.Equal(t, tt.want, MatchConditions(set, ticket, nil))
		})
	}
}

func TestEvaluateRunsMatchingTriggers(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	ticket := sampleTicket()
	gw.PutTicket(ticket)

	store := repository.NewMemoryTriggerStore(
		&models.AutomationTrigger{
			ID: 1, Name: "tag new hardware tickets", TriggerType: models.TriggerTicketCreated, IsActive: true,
			Conditions: models.ConditionSet{Simple: map[string]any{"queue_id": 3}},
			Actions: []models.Action{
				{Type: "add_tag", Params: map[string]any{"tag": "triage"}},
				{Type: "add_comment", Params: map[string]any{"content": "Auto-triaged."}},
			},
		},
		&models.AutomationTrigger{
			ID: 2, Name: "wrong queue", TriggerType: models.TriggerTicketCreated, IsActive: true,
			Conditions: models.ConditionSet{Simple: map[string]any{"queue_id": 9}},
			Actions:    []models.Action{{Type: "change_status", Params: map[string]any{"status": "closed"}}},
		},
		&models.AutomationTrigger{
			ID: 3, Name: "inactive", TriggerType: models.TriggerTicketCreated, IsActive: false,
			Actions: []models.Action{{Type: "change_status", Params: map[string]any{"status": "closed"}}},
		},
	)

	e := NewEvaluator(store, gw)
	fired, err := e.Evaluate(context.Background(), models.TriggerTicketCreated, ticket, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	stored, err := gw.GetTicket(context.Background(), 42)
	require.NoError(t, err)
	assert.Contains(t, stored.Tags, "triage")
	assert.Equal(t, "open", stored.Status)

	notes := gw.Annotations(42)
	require.Len(t, notes, 1)
	assert.Equal(t, "Auto-triaged.", notes[0].Content)
}

func TestActionFailureDoesNotAbortSiblings(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	ticket := sampleTicket()
	gw.PutTicket(ticket)

	store := repository.NewMemoryTriggerStore(&models.AutomationTrigger{
		ID: 1, Name: "broken then working", TriggerType: models.TriggerSLABreach, IsActive: true,
		Actions: []models.Action{
			{Type: "change_priority", Params: map[string]any{"priority": "apocalyptic"}},
			{Type: "add_comment", Params: map[string]any{"content": "Breach handled."}},
		},
	})

	e := NewEvaluator(store, gw)
	fired, err := e.Evaluate(context.Background(), models.TriggerSLABreach, ticket, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	assert.Len(t, gw.Annotations(42), 1, "second action must still run")
	stored, _ := gw.GetTicket(context.Background(), 42)
	assert.Equal(t, models.PriorityHigh, stored.Priority, "invalid priority must not be written")
}

func TestActions(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	ticket := sampleTicket()
	gw.PutTicket(ticket)
	e := NewEvaluator(repository.NewMemoryTriggerStore(), gw)
	ctx := context.Background()

	require.NoError(t, e.executeAction(ctx, models.Action{Type: "assign_user", Params: map[string]any{"user_id": float64(9)}}, ticket))
	require.NoError(t, e.executeAction(ctx, models.Action{Type: "remove_tag", Params: map[string]any{"tag": "urgent"}}, ticket))
	require.NoError(t, e.executeAction(ctx, models.Action{Type: "send_email", Params: map[string]any{
		"recipient": "oncall@example.com", "subject": "breach", "body": "ticket 42",
	}}, ticket))

	stored, err := gw.GetTicket(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, stored.AssigneeID)
	assert.Equal(t, int64(9), *stored.AssigneeID)
	assert.NotContains(t, stored.Tags, "urgent")

	emails := gw.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "oncall@example.com", emails[0].Recipient)

	err = e.executeAction(ctx, models.Action{Type: "launch_rocket"}, ticket)
	require.Error(t, err)
}
