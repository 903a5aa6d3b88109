package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/dukex/matterflow/pkg/receivers/schedule"
	wf "github.com/dukex/matterflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

type Workflow struct {
	persistence persistence.Persistence
	actions     wf.ActionResolver
	validate    *validator.Validate
}

// NewWorkflow creates a new workflow service. Action kinds of saved
// definitions are checked against actions.
func NewWorkflow(persistence persistence.Persistence, actions wf.ActionResolver) *Workflow {
	return &Workflow{
		persistence: persistence,
		actions:     actions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int
	Offset int

	// Filtering
	Owner       string
	Active      *bool
	TriggerType models.TriggerType

	// Sorting
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

var allowedSorts = []string{"created_at", "updated_at", "name"}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	err := validateListWorkflowsRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	all, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	filtered := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if req.Owner != "" && workflow.Owner != req.Owner {
			continue
		}

		if req.Active != nil && workflow.IsActive != *req.Active {
			continue
		}

		if req.TriggerType != "" && workflow.Trigger.Type != req.TriggerType {
			continue
		}

		filtered = append(filtered, workflow)
	}

	slices.SortStableFunc(filtered, func(a, b *models.Workflow) int {
		var cmp int

		switch req.SortBy {
		case "name":
			cmp = strings.Compare(a.Name, b.Name)
		case "updated_at":
			cmp = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}

		if req.SortOrder == "desc" {
			return -cmp
		}

		return cmp
	})

	total := len(filtered)
	start := min(req.Offset, total)
	end := min(start+req.Limit, total)

	return &ListWorkflowsResponse{
		Workflows:   filtered[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	req.Owner = strings.TrimSpace(req.Owner)

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create validates and stores a new workflow under a fresh id.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	err := w.Validate(workflow)
	if err != nil {
		return nil, err
	}

	// the store stamps both timestamps on first save
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = time.Time{}

	if workflow.Actions == nil {
		workflow.Actions = []models.ActionConfig{}
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the definition of an existing workflow.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	err = w.Validate(workflow)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt

	if workflow.Actions == nil {
		workflow.Actions = []models.ActionConfig{}
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Import upserts definitions that carry their own ids, such as those loaded
// from a definitions file. Nothing is stored unless every definition is valid.
func (w *Workflow) Import(ctx context.Context, workflows []*models.Workflow) error {
	for _, workflow := range workflows {
		err := w.Validate(workflow)
		if err != nil {
			return fmt.Errorf("workflow %s: %w", workflow.ID, err)
		}
	}

	for _, workflow := range workflows {
		existing, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, workflow.ID)

		switch {
		case err == nil:
			workflow.CreatedAt = existing.CreatedAt
		case errors.Is(err, ErrWorkflowNotFound):
			workflow.CreatedAt = time.Time{}
		default:
			return fmt.Errorf("failed to import workflow %s: %w", workflow.ID, err)
		}

		if workflow.Actions == nil {
			workflow.Actions = []models.ActionConfig{}
		}

		err = w.persistence.WorkflowRepository().Save(ctx, workflow)
		if err != nil {
			return fmt.Errorf("failed to import workflow %s: %w", workflow.ID, err)
		}
	}

	return nil
}

// PatchWorkflowRequest lists the fields a partial update may change. Nil fields are kept.
type PatchWorkflowRequest struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	IsActive    *bool                  `json:"is_active,omitempty"`
	Owner       *string                `json:"owner,omitempty"`
	Trigger     *models.TriggerConfig  `json:"trigger,omitempty"`
	Actions     *[]models.ActionConfig `json:"actions,omitempty"`
}

// Patch applies a partial update to an existing workflow.
func (w *Workflow) Patch(ctx context.Context, workflowID string, patch PatchWorkflowRequest) (*models.Workflow, error) {
	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	updated := *existing

	if patch.Name != nil {
		updated.Name = *patch.Name
	}

	if patch.Description != nil {
		updated.Description = *patch.Description
	}

	if patch.IsActive != nil {
		updated.IsActive = *patch.IsActive
	}

	if patch.Owner != nil {
		updated.Owner = *patch.Owner
	}

	if patch.Trigger != nil {
		updated.Trigger = *patch.Trigger
	}

	if patch.Actions != nil {
		updated.Actions = *patch.Actions
	}

	return w.Update(ctx, workflowID, &updated)
}

// Delete removes a workflow together with its execution history.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	_, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return err
	}

	err = w.persistence.ExecutionRepository().DeleteByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete executions of workflow: %w", err)
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Validate checks a definition before it is stored: struct rules, condition
// trees, the schedule and schema of the trigger, and that every action kind
// has a registered handler.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	const op = "Validate"

	if workflow == nil {
		return ErrWorkflowNil
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", describeValidation(err), errors.Join(ErrInvalidWorkflow, err))
	}

	err = models.ValidateCondition(workflow.Trigger.Condition.Tree())
	if err != nil {
		return NewValidationError(op, "INVALID_CONDITION", "trigger condition: "+err.Error(), errors.Join(ErrInvalidWorkflow, err))
	}

	trigger := workflow.Trigger

	if trigger.Type == models.TriggerScheduleReached && trigger.Schedule == "" {
		return NewValidationError(op, "INVALID_SCHEDULE", "schedule.reached triggers require a schedule", ErrInvalidWorkflow)
	}

	if trigger.Schedule != "" {
		err = schedule.Validate(trigger.Schedule)
		if err != nil {
			return NewValidationError(op, "INVALID_SCHEDULE", err.Error(), errors.Join(ErrInvalidWorkflow, err))
		}
	}

	if len(trigger.Schema) > 0 {
		_, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(trigger.Schema))
		if err != nil {
			return NewValidationError(op, "INVALID_SCHEMA", "trigger schema: "+err.Error(), errors.Join(ErrInvalidWorkflow, err))
		}
	}

	for i, action := range workflow.Actions {
		err = models.ValidateCondition(action.Condition.Tree())
		if err != nil {
			return NewValidationError(op, "INVALID_CONDITION",
				fmt.Sprintf("action %d condition: %s", i, err), errors.Join(ErrInvalidWorkflow, err))
		}

		if w.actions == nil {
			continue
		}

		if _, ok := w.actions.Resolve(action.Kind); !ok {
			return NewValidationError(op, "UNKNOWN_ACTION_KIND",
				fmt.Sprintf("action %d: unknown action kind %q", i, action.Kind), ErrUnknownActionKind)
		}
	}

	return nil
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' failed on '%s'", fieldErr.Namespace(), fieldErr.Tag()))
	}

	return strings.Join(messages, "; ")
}
