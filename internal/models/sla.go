package models

import (
	"fmt"
	"time"
)

// SlaPolicy holds the contractual response and solution targets for one
// (contract, priority) pair. Both values are business minutes.
type SlaPolicy struct {
	ID                  int64  `json:"id" db:"id"`
	ContractID          int64  `json:"contract_id" db:"contract_id"`
	Priority            string `json:"priority" db:"priority"`
	ResponseTimeMinutes int    `json:"response_time_minutes" db:"response_time_minutes"`
	SolutionTimeMinutes int    `json:"solution_time_minutes" db:"solution_time_minutes"`
}

// Validate enforces the policy invariants: positive targets and
// solution time at least as long as response time.
func (p *SlaPolicy) Validate() error {
	if p.ResponseTimeMinutes <= 0 {
		return fmt.Errorf("sla policy %d: response time must be positive", p.ID)
	}
	if p.SolutionTimeMinutes <= 0 {
		return fmt.Errorf("sla policy %d: solution time must be positive", p.ID)
	}
	if p.SolutionTimeMinutes < p.ResponseTimeMinutes {
		return fmt.Errorf("sla policy %d: solution time shorter than response time", p.ID)
	}
	return nil
}

// StatusPolicy describes how a ticket status interacts with SLA tracking.
type StatusPolicy struct {
	Status     string `json:"status" db:"status"`
	PausesSLA  bool   `json:"pauses_sla" db:"pauses_sla"`
	IsTerminal bool   `json:"is_terminal" db:"is_terminal"`
}

// DeadlineResult carries the two wall-clock deadlines computed for a ticket.
// It is a pure function of the ticket's creation time, its contract's policy
// and calendar, so it can be recomputed at any time for idempotent retries.
type DeadlineResult struct {
	ResponseDueAt time.Time `json:"response_due_at"`
	SolutionDueAt time.Time `json:"solution_due_at"`
}
