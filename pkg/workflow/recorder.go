package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
)

// Recorder persists the lifecycle of a single execution: created RUNNING
// before the first step, one append per step, finalized once.
type Recorder struct {
	store  persistence.ExecutionStore
	logger *slog.Logger
}

func NewRecorder(store persistence.ExecutionStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With("module", "execution_recorder"),
	}
}

// Start creates the RUNNING record and returns it as stored.
func (r *Recorder) Start(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	id, err := r.store.CreateExecution(ctx, workflowID, triggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution for workflow %s: %w", workflowID, err)
	}

	execution, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Execution record created", "execution_id", id, "workflow_id", workflowID)

	return execution, nil
}

// Sink returns the StepSink appending steps to executionID.
func (r *Recorder) Sink(executionID string) StepSink {
	return func(ctx context.Context, step models.StepResult) error {
		err := r.store.AppendStepResult(ctx, executionID, step)
		if err != nil {
			return fmt.Errorf("failed to record step %s of execution %s: %w", step.ActionID, executionID, err)
		}

		return nil
	}
}

// Finalize moves the record to its terminal status and returns the stored result.
func (r *Recorder) Finalize(
	ctx context.Context,
	executionID string,
	status models.ExecutionStatus,
	result map[string]any,
	errMsg string,
) (*models.Execution, error) {
	err := r.store.FinalizeExecution(ctx, executionID, status, result, errMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize execution %s: %w", executionID, err)
	}

	r.logger.DebugContext(ctx, "Execution record finalized", "execution_id", executionID, "status", status)

	return r.Load(ctx, executionID)
}

// Load reads the current state of an execution.
func (r *Recorder) Load(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := r.store.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	return execution, nil
}
