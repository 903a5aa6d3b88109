// Package models defines the core domain models for trigger/action workflow automation.
package models

import "time"

// TriggerType identifies the class of event a workflow listens for.
type TriggerType string

// Well-known trigger types emitted by the practice management application.
const (
	TriggerMatterCreated       TriggerType = "matter.created"
	TriggerMatterStatusChanged TriggerType = "matter.status_changed"
	TriggerClientCreated       TriggerType = "client.created"
	TriggerInvoiceOverdue      TriggerType = "invoice.overdue"
	TriggerMessageReceived     TriggerType = "message.received"
	TriggerScheduleReached     TriggerType = "schedule.reached"
)

// ActionKind selects the handler that performs an action step.
type ActionKind string

// Workflow is the persisted automation rule: a trigger and an ordered chain of actions.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=3"`
	Description string         `json:"description"`
	IsActive    bool           `json:"is_active"`
	Trigger     TriggerConfig  `json:"trigger"               validate:"required"`
	Actions     []ActionConfig `json:"actions"               validate:"dive"`
	Owner       string         `json:"owner,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TriggerConfig declares which events fire a workflow.
//
// Filters map a dotted field path of the event data to either a plain expected
// value (equality) or a predicate object {"operator": ..., "value": ...}.
type TriggerConfig struct {
	Type      TriggerType    `json:"type"                validate:"required"`
	Filters   map[string]any `json:"filters,omitempty"`
	Condition *ConditionExpr `json:"condition,omitempty"`
	Schedule  string         `json:"schedule,omitempty"  validate:"omitempty,cron"`
	Schema    map[string]any `json:"schema,omitempty"`
}

// ActionConfig is a single step of a workflow's action chain.
type ActionConfig struct {
	ID              string         `json:"id,omitempty"`
	Kind            ActionKind     `json:"kind"                        validate:"required"`
	Params          map[string]any `json:"params,omitempty"`
	Condition       *ConditionExpr `json:"condition,omitempty"`
	ContinueOnError bool           `json:"continue_on_error,omitempty"`
}

// ResultKey is the key under which the step's output is stored in the execution result.
func (a ActionConfig) ResultKey() string {
	if a.ID != "" {
		return a.ID
	}

	return string(a.Kind)
}

// Event is an inbound occurrence submitted for dispatch.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Type       TriggerType    `json:"type"                  validate:"required"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at,omitempty"`
}
