package sla

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
	"github.com/servicedesk-io/slacore/internal/services/calendar"
)

// Applier orchestrates policy lookup and deadline calculation at ticket
// creation time and persists the two computed deadlines.
type Applier struct {
	gateway  repository.TicketGateway
	resolver *calendar.Resolver
	policies *PolicyLookup
	logger   *log.Logger
}

// NewApplier wires an applier.
func NewApplier(gateway repository.TicketGateway, resolver *calendar.Resolver, policies *PolicyLookup, logger *log.Logger) *Applier {
	if logger == nil {
		logger = log.Default()
	}
	return &Applier{
		gateway:  gateway,
		resolver: resolver,
		policies: policies,
		logger:   logger,
	}
}

// ApplyDeadlines computes and persists the response and solution deadlines
// for a ticket. It returns (nil, nil) when the ticket has no contractual SLA
// (no contract, no calendar, or no policy for its priority); the ticket then
// keeps null deadline fields.
//
// The result is a pure function of the ticket's creation time, the
// contract's policy and its calendar, so repeated calls are idempotent. A
// later call after contract linkage changes overwrites the previous
// deadlines. Ticket creation must never block on this: callers invoke it as
// a best-effort follow-up after the creation transaction committed.
func (a *Applier) ApplyDeadlines(ctx context.Context, ticketID int64) (*models.DeadlineResult, error) {
	ticket, err := a.gateway.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("sla: load ticket %d: %w", ticketID, err)
	}

	if ticket.ContractID == nil {
		a.logger.Printf("sla: ticket %d has no contract, leaving deadlines unset", ticketID)
		return nil, nil
	}

	workCalendar, err := a.resolver.ForContract(ctx, *ticket.ContractID)
	if errors.Is(err, calendar.ErrConfigurationMissing) {
		a.logger.Printf("sla: ticket %d: %v, leaving deadlines unset", ticketID, err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	policy, err := a.policies.Resolve(ctx, *ticket.ContractID, ticket.Priority)
	if errors.Is(err, ErrPolicyNotFound) {
		a.logger.Printf("sla: ticket %d: %v, leaving deadlines unset", ticketID, err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	responseDue, err := calendar.AddWorkingMinutes(workCalendar, ticket.CreatedAt, policy.ResponseTimeMinutes)
	if err != nil {
		return nil, fmt.Errorf("sla: ticket %d response deadline: %w", ticketID, err)
	}
	solutionDue, err := calendar.AddWorkingMinutes(workCalendar, ticket.CreatedAt, policy.SolutionTimeMinutes)
	if err != nil {
		return nil, fmt.Errorf("sla: ticket %d solution deadline: %w", ticketID, err)
	}

	// Both fields go out in one write so a crash cannot leave a ticket with
	// half-applied deadlines.
	err = a.gateway.UpdateTicketFields(ctx, ticketID, map[string]any{
		"response_due_at": responseDue,
		"solution_due_at": solutionDue,
	})
	if err != nil {
		return nil, fmt.Errorf("sla: persist deadlines for ticket %d: %w", ticketID, err)
	}

	return &models.DeadlineResult{
		ResponseDueAt: responseDue,
		SolutionDueAt: solutionDue,
	}, nil
}
