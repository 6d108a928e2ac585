package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

// TimeScanStats summarizes one time-based evaluation pass.
type TimeScanStats struct {
	Tickets  int
	Fired    int
	Failures int
}

// RunTimeScan evaluates all active time_based triggers against every
// non-terminal ticket. A trigger fires for a ticket when its time condition
// is met and its regular conditions match; elapsed time is measured in wall
// clock, not working hours. Per-ticket failures are logged and counted, not
// propagated.
func (e *Evaluator) RunTimeScan(ctx context.Context) (TimeScanStats, error) {
	triggers, err := e.store.ListActiveTriggers(ctx, models.TriggerTimeBased)
	if err != nil {
		return TimeScanStats{}, fmt.Errorf("automation: load time-based triggers: %w", err)
	}
	if len(triggers) == 0 {
		return TimeScanStats{}, nil
	}

	tickets, err := e.gateway.ListAllNonTerminalTickets(ctx)
	if err != nil {
		return TimeScanStats{}, fmt.Errorf("automation: list open tickets: %w", err)
	}

	now := e.now()
	var stats TimeScanStats
	for _, ticket := range tickets {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Tickets++

		for _, trigger := range triggers {
			met, err := timeConditionMet(trigger.TimeCondition, ticket, now)
			if err != nil {
				stats.Failures++
				e.logger.Printf("automation: trigger %q (%d) on ticket %d: %v", trigger.Name, trigger.ID, ticket.ID, err)
				continue
			}
			if !met || !MatchConditions(trigger.Conditions, ticket, nil) {
				continue
			}
			e.runActions(ctx, trigger, ticket)
			stats.Fired++
		}
	}

	e.logger.Printf("automation: time scan complete, %d ticket(s), %d firing(s), %d failure(s)",
		stats.Tickets, stats.Fired, stats.Failures)
	return stats, nil
}

// timeConditionMet measures how far the reference timestamp lies in the past
// and compares that against the threshold. A negative elapsed value means
// the reference (typically a deadline) is still ahead.
func timeConditionMet(tc *models.TimeCondition, ticket *models.Ticket, now time.Time) (bool, error) {
	if tc == nil {
		return false, fmt.Errorf("time-based trigger without time condition")
	}

	ref, ok := referenceTime(ticket, tc.ReferenceField)
	if !ok {
		return false, fmt.Errorf("unknown reference field %q", tc.ReferenceField)
	}
	if ref == nil {
		return false, nil
	}

	unit, err := unitDuration(tc.Unit)
	if err != nil {
		return false, err
	}
	elapsed := float64(now.Sub(*ref)) / float64(unit)

	switch tc.Operator {
	case models.OpGreaterThan:
		return elapsed > tc.Threshold, nil
	case models.OpGreaterOrEqual:
		return elapsed >= tc.Threshold, nil
	case models.OpLessThan:
		return elapsed < tc.Threshold, nil
	case models.OpLessOrEqual:
		return elapsed <= tc.Threshold, nil
	case models.OpEquals:
		return elapsed == tc.Threshold, nil
	}
	return false, fmt.Errorf("unsupported time condition operator %q", tc.Operator)
}

func referenceTime(ticket *models.Ticket, field string) (*time.Time, bool) {
	switch field {
	case "created_at":
		return &ticket.CreatedAt, true
	case "updated_at":
		return &ticket.UpdatedAt, true
	case "response_due_at":
		return ticket.ResponseDueAt, true
	case "solution_due_at":
		return ticket.SolutionDueAt, true
	}
	return nil, false
}

func unitDuration(unit string) (time.Duration, error) {
	switch unit {
	case "minutes":
		return time.Minute, nil
	case "hours":
		return time.Hour, nil
	case "days":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", unit)
}
