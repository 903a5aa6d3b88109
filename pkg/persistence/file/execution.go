package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository stores one JSON document per execution under <root>/executions.
// Every read-modify-write happens under a single lock, so concurrent runs never
// lose each other's step results.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{
		root: root,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, "executions")
}

// CreateExecution persists a new RUNNING record and returns its id.
func (er *ExecutionRepository) CreateExecution(_ context.Context, workflowID string, triggerData map[string]any) (string, error) {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	execution := models.NewExecution(uuid.New().String(), workflowID, triggerData, er.now())

	er.mu.Lock()
	defer er.mu.Unlock()

	err := er.write("CreateExecution", execution)
	if err != nil {
		return "", err
	}

	return execution.ID, nil
}

// AppendStepResult adds a step to a running execution.
func (er *ExecutionRepository) AppendStepResult(_ context.Context, executionID string, step models.StepResult) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read("AppendStepResult", executionID)
	if err != nil {
		return err
	}

	err = execution.AppendStep(step)
	if err != nil {
		return persistence.NewPersistenceError("AppendStepResult", executionID, err)
	}

	return er.write("AppendStepResult", execution)
}

// FinalizeExecution moves a running execution to its terminal status.
func (er *ExecutionRepository) FinalizeExecution(
	_ context.Context,
	executionID string,
	status models.ExecutionStatus,
	result map[string]any,
	errMsg string,
) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read("FinalizeExecution", executionID)
	if err != nil {
		return err
	}

	err = execution.Finalize(status, result, errMsg, er.now())
	if err != nil {
		return persistence.NewPersistenceError("FinalizeExecution", executionID, err)
	}

	return er.write("FinalizeExecution", execution)
}

// ExecutionByID retrieves an execution by its ID.
func (er *ExecutionRepository) ExecutionByID(_ context.Context, executionID string) (*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.read("ExecutionByID", executionID)
}

// GetByWorkflow returns the executions of a workflow, oldest first.
func (er *ExecutionRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	all, err := er.readAll()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, execution := range all {
		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartedAt.Before(executions[j].StartedAt)
	})

	return executions, nil
}

// DeleteByWorkflow removes the whole execution history of a workflow.
func (er *ExecutionRepository) DeleteByWorkflow(_ context.Context, workflowID string) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	all, err := er.readAll()
	if err != nil {
		return err
	}

	for _, execution := range all {
		if execution.WorkflowID != workflowID {
			continue
		}

		err = os.Remove(filepath.Join(er.dir(), execution.ID+".json"))
		if err != nil && !os.IsNotExist(err) {
			return persistence.NewPersistenceError("DeleteByWorkflow", workflowID, err)
		}
	}

	return nil
}

func (er *ExecutionRepository) readAll() ([]*models.Execution, error) {
	entries, err := os.ReadDir(er.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Execution{}, nil
		}

		return nil, persistence.NewPersistenceError("GetByWorkflow", "", fmt.Errorf("failed to read executions directory: %w", err))
	}

	executions := make([]*models.Execution, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		execution, err := er.read("GetByWorkflow", strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (er *ExecutionRepository) read(op string, executionID string) (*models.Execution, error) {
	err := validateID(executionID)
	if err != nil {
		return nil, persistence.ErrExecutionNotFound
	}

	filePath := filepath.Join(er.dir(), executionID+".json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- filePath is validated and constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewPersistenceError(op, executionID, err)
	}

	var execution models.Execution

	err = json.Unmarshal(data, &execution)
	if err != nil {
		return nil, persistence.NewPersistenceError(op, executionID, fmt.Errorf("failed to unmarshal execution: %w", err))
	}

	return &execution, nil
}

func (er *ExecutionRepository) write(op string, execution *models.Execution) error {
	err := os.MkdirAll(er.dir(), 0750)
	if err != nil {
		return persistence.NewPersistenceError(op, execution.ID, fmt.Errorf("failed to create executions directory: %w", err))
	}

	data, err := json.Marshal(execution)
	if err != nil {
		return persistence.NewPersistenceError(op, execution.ID, fmt.Errorf("failed to marshal execution: %w", err))
	}

	err = os.WriteFile(filepath.Join(er.dir(), execution.ID+".json"), data, 0600)
	if err != nil {
		return persistence.NewPersistenceError(op, execution.ID, err)
	}

	return nil
}
