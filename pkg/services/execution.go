package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/dukex/matterflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Execution exposes manual runs, event dispatch, and execution history.
type Execution struct {
	persistence persistence.Persistence
	engine      *workflow.Engine
	timeout     time.Duration
	validate    *validator.Validate
}

// NewExecution creates a new execution service. A non-positive timeout runs
// manual executions without a deadline.
func NewExecution(persistence persistence.Persistence, engine *workflow.Engine, timeout time.Duration) *Execution {
	return &Execution{
		persistence: persistence,
		engine:      engine,
		timeout:     timeout,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Execute runs a single workflow against triggerData, active or not.
func (e *Execution) Execute(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	return e.engine.ExecuteWithTimeout(ctx, workflowID, triggerData, e.timeout)
}

// Dispatch runs every active workflow matching event. Per-workflow failures are
// returned joined next to the executions that did complete.
func (e *Execution) Dispatch(ctx context.Context, event models.Event) ([]*models.Execution, error) {
	err := e.validate.Struct(event)
	if err != nil {
		return nil, NewValidationError("Dispatch", "INVALID_EVENT", describeValidation(err), ErrInvalidEvent)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if event.Data == nil {
		event.Data = map[string]any{}
	}

	return e.engine.Dispatch(ctx, event)
}

// FetchByID retrieves a single execution record.
func (e *Execution) FetchByID(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		return nil, ErrExecutionNotFound
	}

	return execution, nil
}

// ListByWorkflow returns the execution history of an existing workflow.
func (e *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	_, err := e.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	executions, err := e.persistence.ExecutionRepository().GetByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	if executions == nil {
		executions = []*models.Execution{}
	}

	return executions, nil
}
