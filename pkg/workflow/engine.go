// Package workflow matches events to workflow definitions and runs their action chains.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dukex/matterflow/pkg/conditions"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/otelhelper"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/dukex/matterflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrExecutionTimeout is recorded on a run that outlived its deadline.
var ErrExecutionTimeout = errors.New("execution timed out")

// ResultConditionMet is set to false in the result of a run whose workflow condition did not hold.
const ResultConditionMet = "condition_met"

// Observer is notified of execution lifecycle changes.
type Observer interface {
	ExecutionStarted(ctx context.Context, execution *models.Execution)
	ExecutionFinished(ctx context.Context, execution *models.Execution)
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver adds an observer to the engine.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

// WithTracer sets the tracer used for execution and step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithExecutionTimeout bounds every run started by Dispatch.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// Engine orchestrates matching, execution and recording. It holds no state
// across calls; definitions are re-read from the store on every call.
type Engine struct {
	definitions persistence.DefinitionStore
	recorder    *Recorder
	matcher     *TriggerMatcher
	executor    *Executor
	observers   []Observer
	tracer      trace.Tracer
	timeout     time.Duration
	logger      *slog.Logger
}

func NewEngine(
	definitions persistence.DefinitionStore,
	executions persistence.ExecutionStore,
	resolver ActionResolver,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	engine := &Engine{
		definitions: definitions,
		logger:      logger.With("module", "workflow_engine"),
	}

	for _, opt := range opts {
		opt(engine)
	}

	if engine.tracer == nil {
		engine.tracer = otelhelper.Tracer("matterflow/workflow")
	}

	engine.recorder = NewRecorder(executions, logger)
	engine.matcher = NewTriggerMatcher(logger)
	engine.executor = NewExecutor(resolver, logger, engine.tracer)

	return engine
}

// Execute runs a workflow against triggerData regardless of whether it is active.
// It fails with persistence.ErrWorkflowNotFound, without creating a record, when
// the workflow does not exist.
func (e *Engine) Execute(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	workflow, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, workflow, triggerData)
}

// ExecuteWithTimeout is Execute raced against timeout. When the deadline fires
// first the record is finalized FAILED with a timeout error and any later write
// of the abandoned run is rejected by the store.
func (e *Engine) ExecuteWithTimeout(
	ctx context.Context,
	workflowID string,
	triggerData map[string]any,
	timeout time.Duration,
) (*models.Execution, error) {
	workflow, err := e.load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		return e.execute(ctx, workflow, triggerData)
	}

	return e.executeWithTimeout(ctx, workflow, triggerData, timeout)
}

// Dispatch runs every active workflow matching event, each in its own
// goroutine. Executions are returned in match order; failures of individual
// workflows are joined into the returned error and never stop the others.
func (e *Engine) Dispatch(ctx context.Context, event models.Event) ([]*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.dispatch",
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventTypeKey, string(event.Type)),
	)
	defer span.End()

	workflows, err := e.definitions.ActiveWorkflows(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}

	matches := e.matcher.Match(event, workflows)
	if len(matches) == 0 {
		return []*models.Execution{}, nil
	}

	results := make([]*models.Execution, len(matches))
	errs := make([]error, len(matches))

	var wg sync.WaitGroup

	for i, workflow := range matches {
		wg.Add(1)

		// each run gets its own top level map
		data := maps.Clone(event.Data)

		go func() {
			defer wg.Done()

			var runErr error
			if e.timeout > 0 {
				results[i], runErr = e.executeWithTimeout(ctx, workflow, data, e.timeout)
			} else {
				results[i], runErr = e.execute(ctx, workflow, data)
			}

			if runErr != nil {
				errs[i] = fmt.Errorf("workflow %s: %w", workflow.ID, runErr)
			}
		}()
	}

	wg.Wait()

	executions := make([]*models.Execution, 0, len(results))

	for _, execution := range results {
		if execution != nil {
			executions = append(executions, execution)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
		e.logger.ErrorContext(ctx, "Dispatch finished with errors",
			"event_type", event.Type,
			"matches", len(matches),
			"executions", len(executions),
			"error", err)
	}

	return executions, err
}

func (e *Engine) load(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := e.definitions.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	return workflow, nil
}

func (e *Engine) execute(ctx context.Context, workflow *models.Workflow, triggerData map[string]any) (*models.Execution, error) {
	ctx, span := e.startSpan(ctx, workflow)
	defer span.End()

	execution, err := e.start(ctx, workflow, triggerData)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	finished, err := e.run(ctx, workflow, execution.ID, triggerData)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.ExecutionIDKey, execution.ID))

		return nil, err
	}

	return finished, nil
}

func (e *Engine) executeWithTimeout(
	ctx context.Context,
	workflow *models.Workflow,
	triggerData map[string]any,
	timeout time.Duration,
) (*models.Execution, error) {
	ctx, span := e.startSpan(ctx, workflow)
	defer span.End()

	execution, err := e.start(ctx, workflow, triggerData)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	type runResult struct {
		execution *models.Execution
		err       error
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan runResult, 1)

	go func() {
		finished, runErr := e.run(runCtx, workflow, execution.ID, triggerData)
		done <- runResult{execution: finished, err: runErr}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-done:
		if result.err != nil {
			otelhelper.SetError(span, result.err)
		}

		return result.execution, result.err
	case <-timer.C:
	}

	finished, err := e.finish(ctx, execution.ID, models.ExecutionStatusFailed, nil,
		fmt.Sprintf("%s after %s", ErrExecutionTimeout, timeout))
	if err != nil {
		if errors.Is(err, models.ErrExecutionFinalized) {
			result := <-done

			return result.execution, result.err
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	otelhelper.SetError(span, ErrExecutionTimeout, attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	e.logger.WarnContext(ctx, "Execution timed out",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"timeout", timeout)

	return finished, nil
}

// nolint:spancheck // the caller ends the span
func (e *Engine) startSpan(ctx context.Context, workflow *models.Workflow) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.WorkflowNameKey, workflow.Name),
		attribute.String(otelhelper.TriggerTypeKey, string(workflow.Trigger.Type)),
	)
}

func (e *Engine) start(ctx context.Context, workflow *models.Workflow, triggerData map[string]any) (*models.Execution, error) {
	execution, err := e.recorder.Start(ctx, workflow.ID, triggerData)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Starting execution of workflow",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"actions", len(workflow.Actions))

	for _, observer := range e.observers {
		observer.ExecutionStarted(ctx, execution)
	}

	return execution, nil
}

func (e *Engine) run(
	ctx context.Context,
	workflow *models.Workflow,
	executionID string,
	triggerData map[string]any,
) (*models.Execution, error) {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	logger := e.logger.With("workflow_id", workflow.ID, "execution_id", executionID)
	sink := e.recorder.Sink(executionID)

	if !conditions.EvaluateExpr(workflow.Trigger.Condition, triggerData) {
		logger.InfoContext(ctx, "Workflow condition not met, skipping all actions")

		_, err := e.executor.Skip(ctx, workflow.Actions, sink)
		if err != nil {
			return nil, err
		}

		return e.finish(ctx, executionID, models.ExecutionStatusSucceeded, map[string]any{ResultConditionMet: false}, "")
	}

	actx := &protocol.ActionContext{
		ExecutionID: executionID,
		WorkflowID:  workflow.ID,
		Trigger:     triggerData,
		Results:     map[string]any{},
		Logger:      logger,
	}

	_, status, err := e.executor.Run(ctx, workflow.Actions, actx, sink)
	if err != nil {
		return nil, err
	}

	return e.finish(ctx, executionID, status, actx.Results, "")
}

func (e *Engine) finish(
	ctx context.Context,
	executionID string,
	status models.ExecutionStatus,
	result map[string]any,
	errMsg string,
) (*models.Execution, error) {
	execution, err := e.recorder.Finalize(ctx, executionID, status, result, errMsg)
	if err != nil {
		return nil, err
	}

	var duration time.Duration
	if execution.FinishedAt != nil {
		duration = execution.FinishedAt.Sub(execution.StartedAt)
	}

	e.logger.InfoContext(ctx, "Completed execution of workflow",
		"workflow_id", execution.WorkflowID,
		"execution_id", execution.ID,
		"status", execution.Status,
		"steps", len(execution.StepResults),
		"duration", duration)

	for _, observer := range e.observers {
		observer.ExecutionFinished(ctx, execution)
	}

	return execution, nil
}
