// Package publish provides an action that emits a domain event on the bus.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/matterflow/pkg/eventbus"
	"github.com/dukex/matterflow/pkg/events"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/protocol"
)

const Kind models.ActionKind = "publish_event"

var ErrEventTypeRequired = errors.New("publish_event action requires a 'type'")

// Action publishes {type, data} as a DomainEventReceived on the events topic,
// making it visible to every workflow that listens for that type.
type Action struct {
	logger    *slog.Logger
	publisher eventbus.EventPublisher
}

func NewAction(logger *slog.Logger, publisher eventbus.EventPublisher) *Action {
	return &Action{
		logger:    logger.With("module", "publish_event_action"),
		publisher: publisher,
	}
}

func (*Action) Kind() models.ActionKind {
	return Kind
}

func (*Action) Name() string {
	return "Publish event"
}

func (*Action) Description() string {
	return "Publishes a domain event so other workflows can react to it."
}

func (*Action) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type":        "string",
				"description": "Trigger type of the emitted event",
				"examples":    []string{"matter.status_changed", "client.created"},
			},
			"data": map[string]any{
				"type":        "object",
				"description": "Event payload. Supports templating.",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Partition key, defaults to the execution id",
			},
		},
		"required": []string{"type"},
	}
}

func (a *Action) Invoke(ctx context.Context, params map[string]any, actx *protocol.ActionContext) (protocol.Outcome, error) {
	eventType, _ := params["type"].(string)
	if eventType == "" {
		return protocol.Outcome{}, ErrEventTypeRequired
	}

	data, _ := params["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	key, _ := params["key"].(string)
	if key == "" {
		key = actx.ExecutionID
	}

	event := events.NewDomainEventReceived(models.Event{Type: models.TriggerType(eventType), Data: data})
	event.Metadata = map[string]any{
		"source_execution_id": actx.ExecutionID,
		"source_workflow_id":  actx.WorkflowID,
	}

	err := a.publisher.Publish(ctx, events.EventsTopic, key, event)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	a.logger.InfoContext(ctx, "Published event", "event_id", event.Event.ID, "event_type", eventType, "execution_id", actx.ExecutionID)

	return protocol.Succeeded(map[string]any{
		"event_id": event.Event.ID,
		"type":     eventType,
	}), nil
}
