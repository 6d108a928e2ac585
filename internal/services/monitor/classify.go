// Package monitor periodically classifies open tickets against their SLA
// deadlines and forwards warning/breach events to the dispatcher.
package monitor

import (
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

// State is the SLA standing of a ticket at one instant. It is recomputed on
// every scan from the ticket's deadlines; no state machine is persisted.
type State int

const (
	// StateExcluded tickets are not evaluated: terminal status, a status
	// that pauses the SLA clock, or no solution deadline at all.
	StateExcluded State = iota
	StateOnTrack
	StateWarning
	StateBreach
)

func (s State) String() string {
	switch s {
	case StateExcluded:
		return "excluded"
	case StateOnTrack:
		return "on_track"
	case StateWarning:
		return "warning"
	case StateBreach:
		return "breach"
	}
	return "unknown"
}

// Classification is the outcome of evaluating one ticket.
type Classification struct {
	State   State
	DueType models.DueType
	// Overdue is how far past the deadline the ticket is. Negative while
	// the deadline is still ahead (warning band).
	Overdue time.Duration
}

// Classify evaluates a ticket against "now". Solution breach takes priority
// over response breach since it is the more severe condition; inside the
// warning band the closer deadline wins.
func Classify(ticket *models.Ticket, status *models.StatusPolicy, now time.Time, warningWindow time.Duration) Classification {
	if status != nil && (status.IsTerminal || status.PausesSLA) {
		return Classification{State: StateExcluded}
	}
	if ticket.SolutionDueAt == nil {
		return Classification{State: StateExcluded}
	}

	solutionDue := *ticket.SolutionDueAt
	if !now.Before(solutionDue) {
		return Classification{State: StateBreach, DueType: models.DueSolution, Overdue: now.Sub(solutionDue)}
	}
	if ticket.ResponseDueAt != nil && !now.Before(*ticket.ResponseDueAt) {
		return Classification{State: StateBreach, DueType: models.DueResponse, Overdue: now.Sub(*ticket.ResponseDueAt)}
	}

	solutionWarnAt := solutionDue.Add(-warningWindow)
	responseWarn := ticket.ResponseDueAt != nil && !now.Before(ticket.ResponseDueAt.Add(-warningWindow))
	switch {
	case !now.Before(solutionWarnAt) && responseWarn:
		// Both deadlines are inside the warning band; report the nearer one.
		if ticket.ResponseDueAt.Before(solutionDue) {
			return Classification{State: StateWarning, DueType: models.DueResponse, Overdue: now.Sub(*ticket.ResponseDueAt)}
		}
		return Classification{State: StateWarning, DueType: models.DueSolution, Overdue: now.Sub(solutionDue)}
	case !now.Before(solutionWarnAt):
		return Classification{State: StateWarning, DueType: models.DueSolution, Overdue: now.Sub(solutionDue)}
	case responseWarn:
		return Classification{State: StateWarning, DueType: models.DueResponse, Overdue: now.Sub(*ticket.ResponseDueAt)}
	}

	return Classification{State: StateOnTrack}
}
