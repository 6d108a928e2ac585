package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk-io/slacore/internal/config"
	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			WarningWindow:      2 * time.Hour,
			ScanInterval:       5 * time.Minute,
			TimeScanInterval:   5 * time.Minute,
			DedupWindow:        30 * time.Minute,
			EscalationPriority: models.PriorityCritical,
			PauseMode:          "exclude",
			DefaultTimezone:    "UTC",
		},
	}
}

func businessWeek(id string) *models.WorkCalendar {
	c := models.NewWorkCalendar(id, "Standard Business Hours", time.UTC)
	for day := time.Monday; day <= time.Friday; day++ {
		c.SetWindow(day, 9*60, 18*60)
	}
	return c
}

func TestOnTicketCreated(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	gw.PutCalendar(businessWeek("std"))
	gw.LinkContract(7, "std", &models.SlaPolicy{
		ID: 1, ContractID: 7, Priority: models.PriorityHigh,
		ResponseTimeMinutes: 60, SolutionTimeMinutes: 480,
	})
	contractID := int64(7)
	gw.PutTicket(&models.Ticket{
		ID: 1, Status: "open", Priority: models.PriorityHigh,
		ContractID: &contractID,
		// 2026-01-05 is a Monday.
		CreatedAt: time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC),
	})

	triggers := repository.NewMemoryTriggerStore(&models.AutomationTrigger{
		ID: 1, Name: "tag new tickets", TriggerType: models.TriggerTicketCreated, IsActive: true,
		Actions: []models.Action{{Type: "add_tag", Params: map[string]any{"tag": "fresh"}}},
	})

	eng, err := NewWithStores(testConfig(), gw, triggers, nil)
	require.NoError(t, err)

	require.NoError(t, eng.OnTicketCreated(context.Background(), 1))

	ticket, err := gw.GetTicket(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, ticket.ResponseDueAt)
	assert.Equal(t, time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC), *ticket.ResponseDueAt)
	require.NotNil(t, ticket.SolutionDueAt)
	assert.Equal(t, time.Date(2026, time.January, 5, 17, 0, 0, 0, time.UTC), *ticket.SolutionDueAt)
	assert.Contains(t, ticket.Tags, "fresh")
}

func TestMonitorScanEscalatesAndFiresBreachTriggers(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	breached := time.Now().Add(-time.Hour)
	gw.PutTicket(&models.Ticket{
		ID: 1, Status: "open", Priority: models.PriorityNormal,
		SolutionDueAt: &breached,
	})

	triggers := repository.NewMemoryTriggerStore(&models.AutomationTrigger{
		ID: 1, Name: "page on breach", TriggerType: models.TriggerSLABreach, IsActive: true,
		Actions: []models.Action{{Type: "send_email", Params: map[string]any{
			"recipient": "oncall@example.com", "subject": "SLA breach", "body": "check the queue",
		}}},
	})

	eng, err := NewWithStores(testConfig(), gw, triggers, nil)
	require.NoError(t, err)

	stats, err := eng.RunMonitorScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Breaches)

	ticket, err := gw.GetTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityCritical, ticket.Priority)

	emails := gw.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "oncall@example.com", emails[0].Recipient)

	// The same breach five minutes later is deduplicated end to end.
	stats, err = eng.RunMonitorScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Breaches)
	assert.Len(t, gw.Emails(), 1)
	assert.Len(t, gw.Annotations(1), 2, "breach note and escalation note, once each")
}

func TestOnPriorityChangedRecomputesDeadlines(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	gw.PutCalendar(businessWeek("std"))
	gw.LinkContract(7, "std",
		&models.SlaPolicy{ID: 1, ContractID: 7, Priority: models.PriorityNormal, ResponseTimeMinutes: 120, SolutionTimeMinutes: 960},
		&models.SlaPolicy{ID: 2, ContractID: 7, Priority: models.PriorityHigh, ResponseTimeMinutes: 30, SolutionTimeMinutes: 240},
	)
	contractID := int64(7)
	gw.PutTicket(&models.Ticket{
		ID: 1, Status: "open", Priority: models.PriorityNormal,
		ContractID: &contractID,
		CreatedAt:  time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
	})

	eng, err := NewWithStores(testConfig(), gw, repository.NewMemoryTriggerStore(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, eng.OnTicketCreated(ctx, 1))
	before, _ := gw.GetTicket(ctx, 1)
	require.NotNil(t, before.ResponseDueAt)
	assert.Equal(t, time.Date(2026, time.January, 5, 11, 0, 0, 0, time.UTC), *before.ResponseDueAt)

	// Bump the priority, then recompute against the stricter policy.
	require.NoError(t, gw.UpdateTicketFields(ctx, 1, map[string]any{"priority": models.PriorityHigh}))
	require.NoError(t, eng.OnPriorityChanged(ctx, 1, models.PriorityNormal))

	after, _ := gw.GetTicket(ctx, 1)
	require.NotNil(t, after.ResponseDueAt)
	assert.Equal(t, time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC), *after.ResponseDueAt)
}

func TestEngineJobsExposeSchedule(t *testing.T) {
	eng, err := NewWithStores(testConfig(), repository.NewMemoryTicketGateway(), repository.NewMemoryTriggerStore(), nil)
	require.NoError(t, err)

	jobs := eng.Jobs()
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		assert.Equal(t, "@every 5m0s", job.Schedule)
	}
}
