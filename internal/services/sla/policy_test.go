package sla

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

func TestPolicyLookupResolve(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	gw.LinkContract(7, "",
		&models.SlaPolicy{ID: 1, ContractID: 7, Priority: models.PriorityHigh, ResponseTimeMinutes: 30, SolutionTimeMinutes: 240},
		&models.SlaPolicy{ID: 2, ContractID: 7, Priority: models.PriorityNormal, ResponseTimeMinutes: 120, SolutionTimeMinutes: 960},
	)

	lookup := NewPolicyLookup(gw)

	policy, err := lookup.Resolve(context.Background(), 7, models.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 30, policy.ResponseTimeMinutes)
	assert.Equal(t, 240, policy.SolutionTimeMinutes)

	_, err = lookup.Resolve(context.Background(), 7, models.PriorityCritical)
	assert.True(t, errors.Is(err, ErrPolicyNotFound))

	_, err = lookup.Resolve(context.Background(), 99, models.PriorityHigh)
	assert.True(t, errors.Is(err, ErrPolicyNotFound))
}

func TestPolicyLookupRejectsInvalidPolicy(t *testing.T) {
	gw := repository.NewMemoryTicketGateway()
	gw.LinkContract(7, "", &models.SlaPolicy{
		ID: 1, ContractID: 7, Priority: models.PriorityHigh,
		ResponseTimeMinutes: 240, SolutionTimeMinutes: 60,
	})

	_, err := NewPolicyLookup(gw).Resolve(context.Background(), 7, models.PriorityHigh)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPolicyNotFound))
}
