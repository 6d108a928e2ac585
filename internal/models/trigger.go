package models

import (
	"encoding/json"
	"fmt"
)

// TriggerType names the ticket lifecycle event a trigger listens on.
type TriggerType string

const (
	TriggerTicketCreated   TriggerType = "ticket_created"
	TriggerStatusChanged   TriggerType = "status_changed"
	TriggerPriorityChanged TriggerType = "priority_changed"
	TriggerCommentAdded    TriggerType = "comment_added"
	TriggerTimeBased       TriggerType = "time_based"
	TriggerSLAWarning      TriggerType = "sla_warning"
	TriggerSLABreach       TriggerType = "sla_breach"
)

// Operator is a comparison operator usable in advanced conditions.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
)

// Condition is a single field comparison in the advanced format.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// ConditionSet is a tagged union of the two condition formats the platform
// supports: the legacy flat equality map and the newer operator list. Both
// are conjunctions. Exactly one variant is set.
type ConditionSet struct {
	Simple   map[string]any
	Advanced []Condition
}

// IsSimple reports whether the set uses the flat equality format.
func (c *ConditionSet) IsSimple() bool { return c.Simple != nil }

// IsAdvanced reports whether the set uses the operator-list format.
func (c *ConditionSet) IsAdvanced() bool { return c.Advanced != nil }

// IsEmpty reports whether no conditions are defined; an empty set matches
// every ticket.
func (c *ConditionSet) IsEmpty() bool {
	return len(c.Simple) == 0 && len(c.Advanced) == 0
}

type conditionSetJSON struct {
	Simple   map[string]any `json:"simple,omitempty"`
	Advanced []Condition    `json:"advanced,omitempty"`
}

// MarshalJSON encodes the populated variant under its tag.
func (c ConditionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionSetJSON{Simple: c.Simple, Advanced: c.Advanced})
}

// UnmarshalJSON decodes either tagged variant. Raw objects without a tag are
// treated as the legacy flat map so pre-migration rows keep working.
func (c *ConditionSet) UnmarshalJSON(data []byte) error {
	var tagged conditionSetJSON
	if err := json.Unmarshal(data, &tagged); err == nil && (tagged.Simple != nil || tagged.Advanced != nil) {
		if tagged.Simple != nil && tagged.Advanced != nil {
			return fmt.Errorf("condition set: both variants present")
		}
		c.Simple = tagged.Simple
		c.Advanced = tagged.Advanced
		return nil
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("condition set: %w", err)
	}
	delete(flat, "simple")
	delete(flat, "advanced")
	c.Simple = flat
	return nil
}

// Action is one side effect executed when a trigger fires. Params are
// action-specific (see the automation package for the vocabulary).
type Action struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// TimeCondition configures a time_based trigger: how long a reference
// timestamp must be in the past (or future) before the trigger fires.
type TimeCondition struct {
	ReferenceField string   `json:"reference_field"` // created_at, updated_at, response_due_at, solution_due_at
	Unit           string   `json:"unit"`            // minutes, hours, days
	Threshold      float64  `json:"threshold"`
	Operator       Operator `json:"operator"`
}

// AutomationTrigger is an administrator-defined condition/action rule. The
// engine only reads triggers; their lifecycle is owned by the admin surface.
type AutomationTrigger struct {
	ID            int64          `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	TriggerType   TriggerType    `json:"trigger_type" db:"trigger_type"`
	Conditions    ConditionSet   `json:"conditions"`
	Actions       []Action       `json:"actions"`
	TimeCondition *TimeCondition `json:"time_condition,omitempty"`
	IsActive      bool           `json:"is_active" db:"is_active"`
}
