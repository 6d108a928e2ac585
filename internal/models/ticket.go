package models

import "time"

// Ticket priorities in ascending severity. The dispatcher escalates breached
// tickets to PriorityCritical.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

var priorityRank = map[string]int{
	PriorityLow:      1,
	PriorityNormal:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// PriorityRank returns the severity rank of a priority name, 0 for unknown.
func PriorityRank(priority string) int {
	return priorityRank[priority]
}

// Ticket is the engine's read view of a ticket. The engine only ever writes
// the two deadline fields (and priority/status/assignee/tags through
// automation actions); everything else is owned by the ticket platform.
type Ticket struct {
	ID            int64      `json:"id" db:"id"`
	Subject       string     `json:"subject" db:"subject"`
	Status        string     `json:"status" db:"status"`
	Priority      string     `json:"priority" db:"priority"`
	QueueID       int64      `json:"queue_id" db:"queue_id"`
	ContractID    *int64     `json:"contract_id" db:"contract_id"`
	AssigneeID    *int64     `json:"assignee_id" db:"assignee_id"`
	Tags          []string   `json:"tags" db:"-"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	ResponseDueAt *time.Time `json:"response_due_at" db:"response_due_at"`
	SolutionDueAt *time.Time `json:"solution_due_at" db:"solution_due_at"`
}

// HasTag reports whether the ticket carries the given tag.
func (t *Ticket) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// Annotation is an audit or alert note attached to a ticket. Internal
// annotations are only visible to agents.
type Annotation struct {
	ID        int64     `json:"id" db:"id"`
	TicketID  int64     `json:"ticket_id" db:"ticket_id"`
	Content   string    `json:"content" db:"content"`
	Internal  bool      `json:"internal" db:"internal"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
