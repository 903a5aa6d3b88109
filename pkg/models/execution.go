package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrExecutionFinalized      = errors.New("execution already finalized")
	ErrInvalidStatusTransition = errors.New("invalid execution status transition")
)

// ExecutionStatus is the lifecycle state of a single workflow run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusPartial   ExecutionStatus = "PARTIAL"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusFailed, ExecutionStatusPartial:
		return true
	default:
		return false
	}
}

// StepOutcome is the result of one action step.
type StepOutcome string

const (
	StepOutcomeSuccess StepOutcome = "SUCCESS"
	StepOutcomeFailed  StepOutcome = "FAILED"
	StepOutcomeSkipped StepOutcome = "SKIPPED"
)

// StepResult records what happened to one action of the chain.
type StepResult struct {
	ActionID   string         `json:"action_id,omitempty"`
	ActionKind ActionKind     `json:"action_kind"`
	Outcome    StepOutcome    `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Execution is the durable record of one run of a workflow.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	TriggerData map[string]any  `json:"trigger_data"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Status      ExecutionStatus `json:"status"`
	StepResults []StepResult    `json:"step_results"`
	Result      map[string]any  `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewExecution returns a RUNNING record with no steps.
func NewExecution(id, workflowID string, triggerData map[string]any, startedAt time.Time) *Execution {
	return &Execution{
		ID:          id,
		WorkflowID:  workflowID,
		TriggerData: triggerData,
		StartedAt:   startedAt,
		Status:      ExecutionStatusRunning,
		StepResults: []StepResult{},
	}
}

// AppendStep adds a step result to a running execution.
func (e *Execution) AppendStep(step StepResult) error {
	if e.Status.IsTerminal() {
		return fmt.Errorf("append step to execution %s: %w", e.ID, ErrExecutionFinalized)
	}

	e.StepResults = append(e.StepResults, step)

	return nil
}

// Finalize moves a running execution into a terminal state. It succeeds exactly once.
func (e *Execution) Finalize(status ExecutionStatus, result map[string]any, errMsg string, at time.Time) error {
	if e.Status.IsTerminal() {
		return fmt.Errorf("finalize execution %s: %w", e.ID, ErrExecutionFinalized)
	}

	if !status.IsTerminal() {
		return fmt.Errorf("finalize execution %s as %s: %w", e.ID, status, ErrInvalidStatusTransition)
	}

	e.Status = status
	e.Result = result
	e.Error = errMsg
	e.FinishedAt = &at

	return nil
}

// DeriveStatus computes the overall status of a finished chain.
// Skipped steps count neither as successes nor as failures.
func DeriveStatus(steps []StepResult) ExecutionStatus {
	var succeeded, failed int

	for _, step := range steps {
		switch step.Outcome {
		case StepOutcomeSuccess:
			succeeded++
		case StepOutcomeFailed:
			failed++
		case StepOutcomeSkipped:
		}
	}

	switch {
	case failed == 0:
		return ExecutionStatusSucceeded
	case succeeded == 0:
		return ExecutionStatusFailed
	default:
		return ExecutionStatusPartial
	}
}
