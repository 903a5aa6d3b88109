package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/matterflow/pkg/conditions"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/otelhelper"
	"github.com/dukex/matterflow/pkg/protocol"
	"github.com/dukex/matterflow/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnknownActionKind fails a step whose kind has no registered handler.
var ErrUnknownActionKind = errors.New("unknown action kind")

// ActionResolver maps an action kind to its handler.
type ActionResolver interface {
	Resolve(kind models.ActionKind) (protocol.ActionHandler, bool)
}

// StepSink receives every completed step before the next one starts.
// A sink error stops the run.
type StepSink func(ctx context.Context, step models.StepResult) error

// Executor runs an action chain in declared order.
type Executor struct {
	resolver ActionResolver
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewExecutor(resolver ActionResolver, logger *slog.Logger, tracer trace.Tracer) *Executor {
	if tracer == nil {
		tracer = otelhelper.Tracer("matterflow/workflow")
	}

	return &Executor{
		resolver: resolver,
		logger:   logger.With("module", "action_executor"),
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes actions against actx, which accumulates the output of every
// successful step. A failed step without ContinueOnError aborts the chain and
// the remaining steps are recorded as skipped.
func (e *Executor) Run(
	ctx context.Context,
	actions []models.ActionConfig,
	actx *protocol.ActionContext,
	sink StepSink,
) ([]models.StepResult, models.ExecutionStatus, error) {
	steps := make([]models.StepResult, 0, len(actions))
	aborted := false

	for _, action := range actions {
		var step models.StepResult

		if aborted {
			step = e.skipped(action)
		} else {
			step = e.runStep(ctx, action, actx)
			aborted = step.Outcome == models.StepOutcomeFailed && !action.ContinueOnError
		}

		steps = append(steps, step)

		if sink != nil {
			err := sink(ctx, step)
			if err != nil {
				return steps, models.DeriveStatus(steps), err
			}
		}
	}

	return steps, models.DeriveStatus(steps), nil
}

// Skip records every action as skipped without invoking any handler.
func (e *Executor) Skip(ctx context.Context, actions []models.ActionConfig, sink StepSink) ([]models.StepResult, error) {
	steps := make([]models.StepResult, 0, len(actions))

	for _, action := range actions {
		step := e.skipped(action)
		steps = append(steps, step)

		if sink != nil {
			err := sink(ctx, step)
			if err != nil {
				return steps, err
			}
		}
	}

	return steps, nil
}

func (e *Executor) skipped(action models.ActionConfig) models.StepResult {
	now := e.now()

	return models.StepResult{
		ActionID:   action.ResultKey(),
		ActionKind: action.Kind,
		Outcome:    models.StepOutcomeSkipped,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (e *Executor) runStep(ctx context.Context, action models.ActionConfig, actx *protocol.ActionContext) models.StepResult {
	key := action.ResultKey()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.ExecutionIDKey, actx.ExecutionID),
		attribute.String(otelhelper.ActionIDKey, key),
		attribute.String(otelhelper.ActionKindKey, string(action.Kind)),
	)
	defer span.End()

	logger := actx.Logger
	if logger == nil {
		logger = e.logger
	}

	logger = logger.With("action_id", key, "action_kind", action.Kind)

	step := models.StepResult{
		ActionID:   key,
		ActionKind: action.Kind,
		StartedAt:  e.now(),
	}

	fail := func(err error) models.StepResult {
		step.Outcome = models.StepOutcomeFailed
		step.Error = err.Error()
		step.FinishedAt = e.now()

		otelhelper.SetError(span, err, attribute.String(otelhelper.ActionIDKey, key))
		span.SetAttributes(attribute.String(otelhelper.StepOutcomeKey, string(step.Outcome)))
		logger.WarnContext(ctx, "Step failed", "error", step.Error)

		return step
	}

	if action.Condition != nil && !conditions.EvaluateExpr(action.Condition, actx.Trigger) {
		step.Outcome = models.StepOutcomeSkipped
		step.FinishedAt = e.now()

		span.SetAttributes(attribute.String(otelhelper.StepOutcomeKey, string(step.Outcome)))
		logger.DebugContext(ctx, "Step condition not met, skipping")

		return step
	}

	handler, ok := e.resolver.Resolve(action.Kind)
	if !ok {
		return fail(fmt.Errorf("%w %q", ErrUnknownActionKind, action.Kind))
	}

	params, err := template.ResolveParams(action.Params, actx.TemplateData())
	if err != nil {
		return fail(fmt.Errorf("failed to resolve params: %w", err))
	}

	stepCtx := *actx
	stepCtx.Logger = logger

	outcome, err := invoke(ctx, handler, params, &stepCtx)
	if err != nil {
		return fail(err)
	}

	if !outcome.Success {
		reason := outcome.Error
		if reason == "" {
			reason = "action reported failure"
		}

		return fail(errors.New(reason))
	}

	output := outcome.Output
	if output == nil {
		output = map[string]any{}
	}

	step.Outcome = models.StepOutcomeSuccess
	step.Output = output
	step.FinishedAt = e.now()

	actx.SetResult(key, output)

	span.SetAttributes(attribute.String(otelhelper.StepOutcomeKey, string(step.Outcome)))
	logger.InfoContext(ctx, "Step completed successfully", "duration", step.FinishedAt.Sub(step.StartedAt))

	return step
}

// invoke calls the handler, turning a panic into an error.
func invoke(
	ctx context.Context,
	handler protocol.ActionHandler,
	params map[string]any,
	actx *protocol.ActionContext,
) (outcome protocol.Outcome, err error) {
	defer func() {
		recovered := recover()
		if recovered != nil {
			err = fmt.Errorf("action panicked: %v", recovered)
		}
	}()

	return handler.Invoke(ctx, params, actx)
}
