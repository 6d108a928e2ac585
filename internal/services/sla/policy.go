// Package sla resolves contractual SLA policies and applies the resulting
// deadlines to tickets.
package sla

import (
	"context"
	"errors"
	"fmt"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

// ErrPolicyNotFound signals that a contract carries no SLA policy for a
// priority. This is a legitimate terminal state for deadline computation
// (the ticket keeps null deadlines), not an error condition to alert on.
var ErrPolicyNotFound = errors.New("sla: no policy for contract and priority")

// PolicySource is the slice of the ticket gateway the lookup needs.
type PolicySource interface {
	GetContractCalendarAndPolicies(ctx context.Context, contractID int64) (*models.WorkCalendar, []*models.SlaPolicy, error)
}

// PolicyLookup resolves the (response, solution) target pair for a contract
// and ticket priority. Pure lookup, no mutation.
type PolicyLookup struct {
	source PolicySource
}

// NewPolicyLookup creates a lookup over the given source.
func NewPolicyLookup(source PolicySource) *PolicyLookup {
	return &PolicyLookup{source: source}
}

// Resolve returns the policy for the pair, or ErrPolicyNotFound.
func (l *PolicyLookup) Resolve(ctx context.Context, contractID int64, priority string) (*models.SlaPolicy, error) {
	_, policies, err := l.source.GetContractCalendarAndPolicies(ctx, contractID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: contract %d unknown", ErrPolicyNotFound, contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("sla: resolve policy for contract %d: %w", contractID, err)
	}

	for _, policy := range policies {
		if policy.Priority == priority {
			if err := policy.Validate(); err != nil {
				return nil, err
			}
			return policy, nil
		}
	}
	return nil, fmt.Errorf("%w: contract %d, priority %s", ErrPolicyNotFound, contractID, priority)
}
