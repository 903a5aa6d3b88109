// Package protocol defines the contracts between the engine and pluggable action handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/matterflow/pkg/models"
)

// Outcome is what a handler reports back for one invocation.
type Outcome struct {
	Success bool
	Output  map[string]any
	Error   string
}

// Succeeded builds a successful outcome carrying output.
func Succeeded(output map[string]any) Outcome {
	if output == nil {
		output = map[string]any{}
	}

	return Outcome{Success: true, Output: output}
}

// Failed builds an unsuccessful outcome with a human readable reason.
func Failed(reason string) Outcome {
	return Outcome{Success: false, Error: reason}
}

// ActionContext is the state visible to a step: the trigger data, the outputs
// of the steps that already succeeded, and the identity of the run.
type ActionContext struct {
	ExecutionID string
	WorkflowID  string
	// Trigger is read-only. Nested values are shared with sibling runs of the same event.
	Trigger     map[string]any
	Results     map[string]any
	Logger      *slog.Logger
}

// TemplateData is the root object parameter templates are rendered against.
func (a *ActionContext) TemplateData() map[string]any {
	return map[string]any{
		"trigger": a.Trigger,
		"results": a.Results,
		"execution": map[string]any{
			"id":          a.ExecutionID,
			"workflow_id": a.WorkflowID,
		},
	}
}

// SetResult stores the output of a succeeded step under key.
func (a *ActionContext) SetResult(key string, output map[string]any) {
	if a.Results == nil {
		a.Results = map[string]any{}
	}

	a.Results[key] = output
}

// ActionHandler performs the side effect of one action kind.
type ActionHandler interface {
	Invoke(ctx context.Context, params map[string]any, actx *ActionContext) (Outcome, error)
}

// ActionHandlerFunc adapts a plain function to ActionHandler.
type ActionHandlerFunc func(ctx context.Context, params map[string]any, actx *ActionContext) (Outcome, error)

func (f ActionHandlerFunc) Invoke(ctx context.Context, params map[string]any, actx *ActionContext) (Outcome, error) {
	return f(ctx, params, actx)
}

// ActionPlugin is a self describing handler, as registered by built-ins and loaded from plugins.
type ActionPlugin interface {
	ActionHandler

	Kind() models.ActionKind
	Name() string
	Description() string
	Schema() map[string]any
}
