package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/google/uuid"
)

const executionColumns = `
	id
  , workflow_id
  , trigger_data
  , status
  , step_results
  , result
  , error
  , started_at
  , finished_at
`

// ExecutionRepository handles execution history. Step appends and finalization
// are single guarded statements, so a terminal record is never rewritten.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateExecution persists a new RUNNING record and returns its id.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, workflowID string, triggerData map[string]any) (string, error) {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	data, err := json.Marshal(triggerData)
	if err != nil {
		return "", persistence.NewPersistenceError("CreateExecution", workflowID, fmt.Errorf("failed to marshal trigger data: %w", err))
	}

	id := uuid.New().String()

	query := `
		INSERT INTO executions (id, workflow_id, trigger_data, status, step_results, started_at)
		VALUES ($1, $2, $3, $4, '[]', $5)
	`

	_, err = r.db.ExecContext(ctx, query, id, workflowID, data, models.ExecutionStatusRunning, r.now())
	if err != nil {
		return "", persistence.NewPersistenceError("CreateExecution", workflowID, fmt.Errorf("failed to insert execution: %w", err))
	}

	return id, nil
}

// AppendStepResult adds a step to a running execution.
func (r *ExecutionRepository) AppendStepResult(ctx context.Context, executionID string, step models.StepResult) error {
	data, err := json.Marshal([]models.StepResult{step})
	if err != nil {
		return persistence.NewPersistenceError("AppendStepResult", executionID, fmt.Errorf("failed to marshal step: %w", err))
	}

	query := `
		UPDATE executions
		SET step_results = step_results || $2::jsonb
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, executionID, data, models.ExecutionStatusRunning)
	if err != nil {
		return persistence.NewPersistenceError("AppendStepResult", executionID, fmt.Errorf("failed to append step: %w", err))
	}

	return r.checkGuard(ctx, "AppendStepResult", executionID, result)
}

// FinalizeExecution moves a running execution to its terminal status.
func (r *ExecutionRepository) FinalizeExecution(
	ctx context.Context,
	executionID string,
	status models.ExecutionStatus,
	result map[string]any,
	errMsg string,
) error {
	if !status.IsTerminal() {
		return persistence.NewPersistenceError("FinalizeExecution", executionID, models.ErrInvalidStatusTransition)
	}

	var data []byte

	if result != nil {
		var err error

		data, err = json.Marshal(result)
		if err != nil {
			return persistence.NewPersistenceError("FinalizeExecution", executionID, fmt.Errorf("failed to marshal result: %w", err))
		}
	}

	query := `
		UPDATE executions
		SET status = $2, result = $3, error = $4, finished_at = $5
		WHERE id = $1 AND status = $6
	`

	res, err := r.db.ExecContext(ctx, query, executionID, status, data, errMsg, r.now(), models.ExecutionStatusRunning)
	if err != nil {
		return persistence.NewPersistenceError("FinalizeExecution", executionID, fmt.Errorf("failed to finalize execution: %w", err))
	}

	return r.checkGuard(ctx, "FinalizeExecution", executionID, res)
}

// checkGuard explains a guarded update that touched no row.
func (r *ExecutionRepository) checkGuard(ctx context.Context, op string, executionID string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewPersistenceError(op, executionID, err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)", executionID).Scan(&exists)
	if err != nil {
		return persistence.NewPersistenceError(op, executionID, err)
	}

	if !exists {
		return persistence.ErrExecutionNotFound
	}

	return persistence.NewPersistenceError(op, executionID, models.ErrExecutionFinalized)
}

// ExecutionByID retrieves an execution by its ID.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, executionID string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = $1", executionID)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewPersistenceError("ExecutionByID", executionID, err)
	}

	return execution, nil
}

// GetByWorkflow returns the executions of a workflow, oldest first.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE workflow_id = $1 ORDER BY started_at ASC"

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewPersistenceError("GetByWorkflow", workflowID, fmt.Errorf("failed to query executions: %w", err))
	}

	defer func() {
		closeErr := rows.Close()
		if closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewPersistenceError("GetByWorkflow", workflowID, err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewPersistenceError("GetByWorkflow", workflowID, fmt.Errorf("error iterating executions: %w", err))
	}

	return executions, nil
}

// DeleteByWorkflow removes the whole execution history of a workflow.
func (r *ExecutionRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM executions WHERE workflow_id = $1", workflowID)
	if err != nil {
		return persistence.NewPersistenceError("DeleteByWorkflow", workflowID, fmt.Errorf("failed to delete executions: %w", err))
	}

	return nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		triggerData []byte
		stepResults []byte
		result      []byte
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&triggerData,
		&execution.Status,
		&stepResults,
		&result,
		&execution.Error,
		&execution.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggerData, &execution.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	err = json.Unmarshal(stepResults, &execution.StepResults)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
	}

	if len(result) > 0 {
		err = json.Unmarshal(result, &execution.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	execution.StartedAt = execution.StartedAt.UTC()

	if finishedAt.Valid {
		finished := finishedAt.Time.UTC()
		execution.FinishedAt = &finished
	}

	return &execution, nil
}
