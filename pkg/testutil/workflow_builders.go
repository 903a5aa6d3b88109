// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/matterflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestWorkflow creates an active workflow listening for matter status
// changes with a single log action. Overrides are applied in order.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		IsActive:    true,
		Owner:       "test-user",
		Trigger: models.TriggerConfig{
			Type: models.TriggerMatterStatusChanged,
		},
		Actions: []models.ActionConfig{
			CreateTestAction("log", map[string]any{"message": "matter {{ .trigger.matter.id }} changed"}),
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// CreateTestAction creates an action step of kind with params.
func CreateTestAction(kind models.ActionKind, params map[string]any) models.ActionConfig {
	return models.ActionConfig{Kind: kind, Params: params}
}

// WithID sets the workflow ID.
func WithID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithName sets the workflow name.
func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithOwner sets the workflow owner.
func WithOwner(owner string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Owner = owner
	}
}

// WithActive sets the workflow active flag.
func WithActive(active bool) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.IsActive = active
	}
}

// WithTriggerType sets the trigger type, keeping filters and condition.
func WithTriggerType(triggerType models.TriggerType) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger.Type = triggerType
	}
}

// WithFilter adds a trigger filter on a dotted field path.
func WithFilter(field string, expected any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		if w.Trigger.Filters == nil {
			w.Trigger.Filters = map[string]any{}
		}

		w.Trigger.Filters[field] = expected
	}
}

// WithCondition sets the workflow level condition.
func WithCondition(condition models.Condition) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger.Condition = models.NewConditionExpr(condition)
	}
}

// WithSchedule turns the workflow into a schedule.reached workflow.
func WithSchedule(expr string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = models.TriggerConfig{Type: models.TriggerScheduleReached, Schedule: expr}
	}
}

// WithActions replaces the action chain.
func WithActions(actions ...models.ActionConfig) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Actions = actions
	}
}
