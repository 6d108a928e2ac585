package automation

import (
	"context"
	"fmt"

	"github.com/servicedesk-io/slacore/internal/models"
)

// runActions executes a trigger's actions in declared order. Each failure is
// logged with the trigger and action identity and the remaining actions
// still run.
func (e *Evaluator) runActions(ctx context.Context, trigger *models.AutomationTrigger, ticket *models.Ticket) {
	for _, action := range trigger.Actions {
		if err := e.executeAction(ctx, action, ticket); err != nil {
			e.logger.Printf("automation: trigger %q (%d) action %s on ticket %d: %v",
				trigger.Name, trigger.ID, action.Type, ticket.ID, err)
		}
	}
}

func (e *Evaluator) executeAction(ctx context.Context, action models.Action, ticket *models.Ticket) error {
	switch action.Type {
	case "add_comment":
		content, ok := stringParam(action.Params, "content")
		if !ok {
			return fmt.Errorf("missing content param")
		}
		internal := boolParam(action.Params, "internal", true)
		return e.gateway.AppendAnnotation(ctx, ticket.ID, content, internal)

	case "change_priority":
		priority, ok := stringParam(action.Params, "priority")
		if !ok {
			return fmt.Errorf("missing priority param")
		}
		if models.PriorityRank(priority) == 0 {
			return fmt.Errorf("unknown priority %q", priority)
		}
		if ticket.Priority == priority {
			return nil
		}
		if err := e.gateway.UpdateTicketFields(ctx, ticket.ID, map[string]any{"priority": priority}); err != nil {
			return err
		}
		ticket.Priority = priority
		return nil

	case "change_status":
		status, ok := stringParam(action.Params, "status")
		if !ok {
			return fmt.Errorf("missing status param")
		}
		if ticket.Status == status {
			return nil
		}
		if err := e.gateway.UpdateTicketFields(ctx, ticket.ID, map[string]any{"status": status}); err != nil {
			return err
		}
		ticket.Status = status
		return nil

	case "assign_user":
		userID, ok := int64Param(action.Params, "user_id")
		if !ok {
			return fmt.Errorf("missing user_id param")
		}
		if err := e.gateway.UpdateTicketFields(ctx, ticket.ID, map[string]any{"assignee_id": userID}); err != nil {
			return err
		}
		ticket.AssigneeID = &userID
		return nil

	case "add_tag":
		tag, ok := stringParam(action.Params, "tag")
		if !ok {
			return fmt.Errorf("missing tag param")
		}
		if ticket.HasTag(tag) {
			return nil
		}
		tags := append(append([]string(nil), ticket.Tags...), tag)
		if err := e.gateway.UpdateTicketFields(ctx, ticket.ID, map[string]any{"tags": tags}); err != nil {
			return err
		}
		ticket.Tags = tags
		return nil

	case "remove_tag":
		tag, ok := stringParam(action.Params, "tag")
		if !ok {
			return fmt.Errorf("missing tag param")
		}
		if !ticket.HasTag(tag) {
			return nil
		}
		tags := make([]string, 0, len(ticket.Tags))
		for _, v := range ticket.Tags {
			if v != tag {
				tags = append(tags, v)
			}
		}
		if err := e.gateway.UpdateTicketFields(ctx, ticket.ID, map[string]any{"tags": tags}); err != nil {
			return err
		}
		ticket.Tags = tags
		return nil

	case "send_email":
		recipient, ok := stringParam(action.Params, "recipient")
		if !ok {
			return fmt.Errorf("missing recipient param")
		}
		subject, _ := stringParam(action.Params, "subject")
		body, _ := stringParam(action.Params, "body")
		return e.gateway.EnqueueEmail(ctx, recipient, subject, body)
	}

	return fmt.Errorf("unknown action type %q", action.Type)
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok && v != ""
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

// int64Param accepts both native integers and the float64 that JSON decoding
// produces for numbers.
func int64Param(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
