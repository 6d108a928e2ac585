package models

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies how close a ticket is to its deadline.
type EventKind string

const (
	EventWarning EventKind = "warning"
	EventBreach  EventKind = "breach"
)

// DueType names which deadline an event refers to.
type DueType string

const (
	DueResponse DueType = "response"
	DueSolution DueType = "solution"
)

// ClassificationEvent is emitted by the monitor when a ticket enters the
// warning band or breaches a deadline. It is transient: the dispatcher is
// responsible for deduplicating equivalent events within its window.
type ClassificationEvent struct {
	ID         string        `json:"id"`
	TicketID   int64         `json:"ticket_id"`
	Kind       EventKind     `json:"kind"`
	DueType    DueType       `json:"due_type"`
	Overdue    time.Duration `json:"overdue"`
	DetectedAt time.Time     `json:"detected_at"`
}

// NewClassificationEvent builds an event with a fresh identity.
func NewClassificationEvent(ticketID int64, kind EventKind, dueType DueType, overdue time.Duration, detectedAt time.Time) ClassificationEvent {
	return ClassificationEvent{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		Kind:       kind,
		DueType:    dueType,
		Overdue:    overdue,
		DetectedAt: detectedAt,
	}
}
