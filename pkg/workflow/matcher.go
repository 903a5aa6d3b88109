package workflow

import (
	"log/slog"

	"github.com/dukex/matterflow/pkg/conditions"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
)

// TriggerMatcher selects the workflows an inbound event should run.
type TriggerMatcher struct {
	logger *slog.Logger
}

// NewTriggerMatcher creates a new trigger matcher.
func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// Match returns, in candidate order, the workflows whose trigger accepts event.
// A workflow matches when it is active, listens for the event type, every
// filter holds, and its schedule, schema and condition (when set) accept the
// event data.
func (tm *TriggerMatcher) Match(event models.Event, candidates []*models.Workflow) []*models.Workflow {
	matches := make([]*models.Workflow, 0)

	for _, workflow := range candidates {
		if workflow == nil || !workflow.IsActive {
			continue
		}

		if !tm.Accepts(workflow.Trigger, event) {
			continue
		}

		if !conditions.EvaluateExpr(workflow.Trigger.Condition, event.Data) {
			tm.logger.Debug("Workflow condition not met", "workflow_id", workflow.ID, "event_type", event.Type)

			continue
		}

		tm.logger.Debug("Found matching workflow",
			"workflow_id", workflow.ID,
			"workflow_name", workflow.Name,
			"event_type", event.Type)

		matches = append(matches, workflow)
	}

	tm.logger.Info("Completed trigger matching",
		"event_type", event.Type,
		"candidates", len(candidates),
		"matches_found", len(matches))

	return matches
}

// Accepts reports whether the trigger config selects event, ignoring the
// workflow-level condition.
func (tm *TriggerMatcher) Accepts(trigger models.TriggerConfig, event models.Event) bool {
	if trigger.Type != event.Type {
		return false
	}

	for path, expected := range trigger.Filters {
		if !matchFilter(event.Data, path, expected) {
			return false
		}
	}

	if trigger.Schedule != "" {
		schedule, ok := event.Data["schedule"]
		if !ok || cast.ToString(schedule) != trigger.Schedule {
			return false
		}
	}

	if len(trigger.Schema) > 0 && !tm.matchSchema(trigger.Schema, event) {
		return false
	}

	return true
}

// matchFilter applies one filter entry. A plain value means equality; an
// object carrying "operator" is a predicate. A missing field never matches.
func matchFilter(data map[string]any, path string, expected any) bool {
	actual, found, err := conditions.Lookup(data, path)
	if err != nil || !found {
		return false
	}

	operator := models.OperatorEquals

	if predicate, ok := expected.(map[string]any); ok {
		if raw, hasOperator := predicate["operator"]; hasOperator {
			operator = models.Operator(cast.ToString(raw))
			if !operator.Valid() {
				return false
			}

			expected = predicate["value"]
		}
	}

	return conditions.Compare(operator, actual, found, expected)
}

func (tm *TriggerMatcher) matchSchema(schema map[string]any, event models.Event) bool {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		tm.logger.Warn("Invalid trigger schema", "event_type", event.Type, "error", err)

		return false
	}

	if !result.Valid() {
		tm.logger.Debug("Event data does not satisfy trigger schema",
			"event_type", event.Type,
			"errors", len(result.Errors()))

		return false
	}

	return true
}
