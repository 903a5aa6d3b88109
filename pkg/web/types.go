// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/dukex/matterflow/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	IsActive    *bool                 `json:"is_active"`
	Owner       string                `json:"owner"`
	Trigger     models.TriggerConfig  `json:"trigger"     validate:"required"`
	Actions     []models.ActionConfig `json:"actions"`
}

// Workflow converts the request into a definition. Workflows are active unless stated otherwise.
func (r CreateWorkflowRequest) Workflow() *models.Workflow {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		IsActive:    active,
		Owner:       r.Owner,
		Trigger:     r.Trigger,
		Actions:     r.Actions,
	}
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                `json:"description,omitempty"`
	IsActive    *bool                  `json:"is_active,omitempty"`
	Owner       *string                `json:"owner,omitempty"`
	Trigger     *models.TriggerConfig  `json:"trigger,omitempty"`
	Actions     *[]models.ActionConfig `json:"actions,omitempty"`
}

// ExecuteWorkflowRequest carries the trigger data of a manual run.
type ExecuteWorkflowRequest struct {
	Data map[string]any `json:"data"`
}

// DispatchEventRequest represents an inbound domain event.
type DispatchEventRequest struct {
	ID   string             `json:"id,omitempty"`
	Type models.TriggerType `json:"type"         validate:"required"`
	Data map[string]any     `json:"data"`
}

// DispatchEventResponse lists the executions started by an event.
type DispatchEventResponse struct {
	EventID    string              `json:"event_id,omitempty"`
	Executions []*models.Execution `json:"executions"`
	Errors     []string            `json:"errors,omitempty"`
}

// ExecutionListResponse wraps the execution history of a workflow.
type ExecutionListResponse struct {
	Executions []*models.Execution `json:"executions"`
	TotalCount int                 `json:"total_count"`
}
