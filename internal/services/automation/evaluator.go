// Package automation evaluates administrator-defined condition/action rules
// against tickets and executes their actions through the ticket gateway.
package automation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
	"github.com/servicedesk-io/slacore/internal/repository"
)

// ChangeContext carries the pre-change field values for "changed" trigger
// types. Conditions reference them with a previous_ prefix, e.g.
// previous_status.
type ChangeContext struct {
	Previous map[string]any
}

// Option configures the evaluator.
type Option func(*Evaluator)

// WithLogger sets a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithNowFunc sets a custom time function (for testing).
func WithNowFunc(fn func() time.Time) Option {
	return func(e *Evaluator) { e.now = fn }
}

// Evaluator matches triggers against tickets and runs their action lists.
// It owns no ticket state; every side effect is a gateway capability call.
type Evaluator struct {
	store   repository.TriggerStore
	gateway repository.TicketGateway
	logger  *log.Logger
	now     func() time.Time
}

// NewEvaluator wires an evaluator.
func NewEvaluator(store repository.TriggerStore, gateway repository.TicketGateway, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:   store,
		gateway: gateway,
		logger:  log.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate loads all active triggers of the given type and, for each whose
// condition set matches the ticket, executes its actions in order. It
// returns how many triggers fired. A failing action is logged and skipped;
// it aborts neither its siblings nor the remaining triggers.
func (e *Evaluator) Evaluate(ctx context.Context, triggerType models.TriggerType, ticket *models.Ticket, change *ChangeContext) (int, error) {
	triggers, err := e.store.ListActiveTriggers(ctx, triggerType)
	if err != nil {
		return 0, fmt.Errorf("automation: load %s triggers: %w", triggerType, err)
	}

	fired := 0
	for _, trigger := range triggers {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		if !MatchConditions(trigger.Conditions, ticket, change) {
			continue
		}
		e.runActions(ctx, trigger, ticket)
		fired++
	}
	return fired, nil
}

// MatchConditions evaluates a condition set against a ticket. Both variants
// are conjunctions; an empty set matches everything.
func MatchConditions(set models.ConditionSet, ticket *models.Ticket, change *ChangeContext) bool {
	switch {
	case set.IsSimple():
		return matchSimple(set.Simple, ticket, change)
	case set.IsAdvanced():
		return matchAdvanced(set.Advanced, ticket, change)
	default:
		return true
	}
}

// matchSimple treats the flat map as exact-equality checks. A nil expected
// value is an explicit null check.
func matchSimple(conditions map[string]any, ticket *models.Ticket, change *ChangeContext) bool {
	for field, expected := range conditions {
		actual, ok := fieldValue(ticket, change, field)
		if expected == nil {
			if ok && actual != nil {
				return false
			}
			continue
		}
		if !ok || !equalValues(actual, expected) {
			return false
		}
	}
	return true
}

func matchAdvanced(conditions []models.Condition, ticket *models.Ticket, change *ChangeContext) bool {
	for _, condition := range conditions {
		if !matchCondition(condition, ticket, change) {
			return false
		}
	}
	return true
}

func matchCondition(c models.Condition, ticket *models.Ticket, change *ChangeContext) bool {
	actual, present := fieldValue(ticket, change, c.Field)

	switch c.Operator {
	case models.OpExists:
		return present && actual != nil
	case models.OpNotExists:
		return !present || actual == nil
	}

	if !present {
		return false
	}

	switch c.Operator {
	case models.OpEquals:
		return equalValues(actual, c.Value)
	case models.OpNotEquals:
		return !equalValues(actual, c.Value)
	case models.OpContains:
		return containsValue(actual, c.Value)
	case models.OpNotContains:
		return !containsValue(actual, c.Value)
	case models.OpStartsWith:
		return strings.HasPrefix(toString(actual), toString(c.Value))
	case models.OpEndsWith:
		return strings.HasSuffix(toString(actual), toString(c.Value))
	case models.OpGreaterThan:
		cmp, ok := compareValues(actual, c.Value)
		return ok && cmp > 0
	case models.OpLessThan:
		cmp, ok := compareValues(actual, c.Value)
		return ok && cmp < 0
	case models.OpGreaterOrEqual:
		cmp, ok := compareValues(actual, c.Value)
		return ok && cmp >= 0
	case models.OpLessOrEqual:
		cmp, ok := compareValues(actual, c.Value)
		return ok && cmp <= 0
	case models.OpIn:
		return inList(actual, c.Value)
	case models.OpNotIn:
		return !inList(actual, c.Value)
	}
	return false
}

// fieldValue resolves a condition field name against the ticket or, for
// previous_-prefixed names, the change context. The second return value is
// false when the field is unknown or has no value.
func fieldValue(ticket *models.Ticket, change *ChangeContext, field string) (any, bool) {
	if prev, ok := strings.CutPrefix(field, "previous_"); ok {
		if change == nil || change.Previous == nil {
			return nil, false
		}
		v, ok := change.Previous[prev]
		return v, ok
	}

	switch field {
	case "id":
		return ticket.ID, true
	case "subject":
		return ticket.Subject, true
	case "status":
		return ticket.Status, true
	case "priority":
		return ticket.Priority, true
	case "queue_id":
		return ticket.QueueID, true
	case "contract_id":
		if ticket.ContractID == nil {
			return nil, true
		}
		return *ticket.ContractID, true
	case "assignee_id":
		if ticket.AssigneeID == nil {
			return nil, true
		}
		return *ticket.AssigneeID, true
	case "tags":
		return ticket.Tags, true
	case "created_at":
		return ticket.CreatedAt, true
	case "updated_at":
		return ticket.UpdatedAt, true
	case "response_due_at":
		if ticket.ResponseDueAt == nil {
			return nil, true
		}
		return *ticket.ResponseDueAt, true
	case "solution_due_at":
		if ticket.SolutionDueAt == nil {
			return nil, true
		}
		return *ticket.SolutionDueAt, true
	}
	return nil, false
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

// containsValue checks substring containment for scalars and membership for
// string slices (tags).
func containsValue(actual, expected any) bool {
	if list, ok := actual.([]string); ok {
		needle := toString(expected)
		for _, v := range list {
			if v == needle {
				return true
			}
		}
		return false
	}
	return strings.Contains(toString(actual), toString(expected))
}

// compareValues orders two values numerically when both are numeric,
// falling back to lexicographic order. The second return value is false
// when either side is nil.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	return strings.Compare(toString(a), toString(b)), true
}

func inList(actual, expected any) bool {
	switch list := expected.(type) {
	case []any:
		for _, v := range list {
			if equalValues(actual, v) {
				return true
			}
		}
	case []string:
		for _, v := range list {
			if equalValues(actual, v) {
				return true
			}
		}
	case string:
		for _, v := range strings.Split(list, ",") {
			if equalValues(actual, strings.TrimSpace(v)) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []string:
		return strings.Join(val, ",")
	}
	return fmt.Sprint(v)
}
