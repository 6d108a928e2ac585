package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/servicedesk-io/slacore/internal/models"
)

// SQLTriggerStore reads automation triggers from the platform database.
type SQLTriggerStore struct {
	db *sqlx.DB
}

// NewSQLTriggerStore creates a trigger store around the shared connection.
func NewSQLTriggerStore(db *sqlx.DB) *SQLTriggerStore {
	return &SQLTriggerStore{db: db}
}

type triggerRow struct {
	ID            int64   `db:"id"`
	Name          string  `db:"name"`
	TriggerType   string  `db:"trigger_type"`
	Conditions    []byte  `db:"conditions"`
	Actions       []byte  `db:"actions"`
	TimeCondition *[]byte `db:"time_condition"`
	IsActive      bool    `db:"is_active"`
}

// ListActiveTriggers returns active triggers of the given type ordered by id.
// Rows with malformed JSON are skipped rather than failing the whole load; a
// single broken trigger must not disable the rest of the automation.
func (s *SQLTriggerStore) ListActiveTriggers(ctx context.Context, triggerType models.TriggerType) ([]*models.AutomationTrigger, error) {
	query := s.db.Rebind(`
		SELECT id, name, trigger_type, conditions, actions, time_condition, is_active
		FROM automation_triggers
		WHERE trigger_type = ? AND is_active = ?
		ORDER BY id`)

	var rows []triggerRow
	if err := s.db.SelectContext(ctx, &rows, query, string(triggerType), true); err != nil {
		return nil, fmt.Errorf("list triggers of type %s: %w", triggerType, err)
	}

	triggers := make([]*models.AutomationTrigger, 0, len(rows))
	for _, row := range rows {
		trigger, err := row.toModel()
		if err != nil {
			continue
		}
		triggers = append(triggers, trigger)
	}
	return triggers, nil
}

func (r triggerRow) toModel() (*models.AutomationTrigger, error) {
	trigger := &models.AutomationTrigger{
		ID:          r.ID,
		Name:        r.Name,
		TriggerType: models.TriggerType(r.TriggerType),
		IsActive:    r.IsActive,
	}
	if len(r.Conditions) > 0 {
		if err := json.Unmarshal(r.Conditions, &trigger.Conditions); err != nil {
			return nil, fmt.Errorf("trigger %d: conditions: %w", r.ID, err)
		}
	}
	if len(r.Actions) > 0 {
		if err := json.Unmarshal(r.Actions, &trigger.Actions); err != nil {
			return nil, fmt.Errorf("trigger %d: actions: %w", r.ID, err)
		}
	}
	if r.TimeCondition != nil && len(*r.TimeCondition) > 0 {
		var tc models.TimeCondition
		if err := json.Unmarshal(*r.TimeCondition, &tc); err != nil {
			return nil, fmt.Errorf("trigger %d: time condition: %w", r.ID, err)
		}
		trigger.TimeCondition = &tc
	}
	return trigger, nil
}
