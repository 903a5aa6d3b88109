// Package transform provides an action that reshapes trigger data and prior results.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/matterflow/pkg/conditions"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/protocol"
)

const Kind models.ActionKind = "transform"

var ErrNothingToTransform = errors.New("transform action requires 'fields' or 'set'")

// Action copies values found at dotted paths into a new output object.
//
// params:
//
//	input:  optional object to read from; defaults to {trigger, results, execution}
//	fields: map of output key to dotted path in input
//	set:    map of output key to literal (already templated) value
type Action struct {
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger.With("module", "transform_action")}
}

func (*Action) Kind() models.ActionKind {
	return Kind
}

func (*Action) Name() string {
	return "Transform"
}

func (*Action) Description() string {
	return "Builds a new object from paths in the trigger data or earlier step results, plus literal values."
}

func (*Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "object",
				"description": "Object to read from. Defaults to the whole step scope.",
			},
			"fields": map[string]any{
				"type":                 "object",
				"description":          "Output key to dotted path, e.g. {\"email\": \"trigger.client.email\"}",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"set": map[string]any{
				"type":        "object",
				"description": "Output key to literal value. Supports templating.",
			},
			"strict": map[string]any{
				"type":        "boolean",
				"description": "Fail when a path in fields is missing",
				"default":     false,
			},
		},
	}
}

func (a *Action) Invoke(ctx context.Context, params map[string]any, actx *protocol.ActionContext) (protocol.Outcome, error) {
	fields, _ := params["fields"].(map[string]any)
	set, _ := params["set"].(map[string]any)

	if len(fields) == 0 && len(set) == 0 {
		return protocol.Outcome{}, ErrNothingToTransform
	}

	input, ok := params["input"].(map[string]any)
	if !ok {
		input = actx.TemplateData()
	}

	strict, _ := params["strict"].(bool)

	output := make(map[string]any, len(fields)+len(set))

	for key, rawPath := range fields {
		path, ok := rawPath.(string)
		if !ok {
			return protocol.Outcome{}, fmt.Errorf("field %q: path must be a string", key)
		}

		value, found, err := conditions.Lookup(input, path)
		if err != nil {
			return protocol.Outcome{}, fmt.Errorf("field %q: %w", key, err)
		}

		if !found {
			if strict {
				return protocol.Failed(fmt.Sprintf("field %q: path %q not found", key, path)), nil
			}

			value = nil
		}

		output[key] = value
	}

	for key, value := range set {
		output[key] = value
	}

	a.logger.DebugContext(ctx, "TransformAction completed", "execution_id", actx.ExecutionID, "keys", len(output))

	return protocol.Succeeded(output), nil
}
