// Package log provides an action that writes a templated message to the execution log.
package log

import (
	"context"
	"errors"
	"log/slog"
	"time"

	matterlog "github.com/dukex/matterflow/pkg/log"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/protocol"
	"github.com/spf13/cast"
)

const Kind models.ActionKind = "log"

var ErrMessageRequired = errors.New("log action requires a message")

// Action logs a message at a specified level.
type Action struct {
	logger *slog.Logger
}

func NewAction(logger *slog.Logger) *Action {
	return &Action{logger: logger}
}

func (*Action) Kind() models.ActionKind {
	return Kind
}

func (*Action) Name() string {
	return "Log"
}

func (*Action) Description() string {
	return "Logs a message at a specified level. Supports templating for dynamic content."
}

func (*Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Matter {{ .trigger.matter.id }} was created",
					"Task {{ .results.create_task.task_id }} assigned at {{ now }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}

func (a *Action) Invoke(ctx context.Context, params map[string]any, actx *protocol.ActionContext) (protocol.Outcome, error) {
	message, err := cast.ToStringE(params["message"])
	if err != nil || message == "" {
		return protocol.Outcome{}, ErrMessageRequired
	}

	levelName, _ := params["level"].(string)
	level := matterlog.ParseLevel(levelName)

	logger := a.logger
	if actx.Logger != nil {
		logger = actx.Logger
	}

	logger.Log(ctx, level, message,
		"action_kind", Kind,
		"execution_id", actx.ExecutionID,
		"workflow_id", actx.WorkflowID,
	)

	return protocol.Succeeded(map[string]any{
		"message":   message,
		"level":     level.String(),
		"logged_at": time.Now().UTC().Format(time.RFC3339),
	}), nil
}
