// Package persistence provides the storage contracts of workflow definitions and execution history.
package persistence

import (
	"context"

	"github.com/dukex/matterflow/pkg/models"
)

// DefinitionStore is the read side of workflow definitions the engine depends on.
type DefinitionStore interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	ActiveWorkflows(ctx context.Context) ([]*models.Workflow, error)
}

// ExecutionStore records the history of workflow runs.
//
// Implementations must reject AppendStepResult and FinalizeExecution on a
// record that already reached a terminal status.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, workflowID string, triggerData map[string]any) (string, error)
	AppendStepResult(ctx context.Context, executionID string, step models.StepResult) error
	FinalizeExecution(
		ctx context.Context,
		executionID string,
		status models.ExecutionStatus,
		result map[string]any,
		errMsg string,
	) error
	ExecutionByID(ctx context.Context, executionID string) (*models.Execution, error)
}

// WorkflowRepository manages workflow definitions.
type WorkflowRepository interface {
	DefinitionStore

	GetAll(ctx context.Context) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository manages execution history.
type ExecutionRepository interface {
	ExecutionStore

	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
