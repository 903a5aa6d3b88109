package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/matterflow/pkg/events"
	"github.com/dukex/matterflow/pkg/models"
)

// ExecutionPublisher announces execution lifecycle changes on the executions
// topic, keyed by workflow id. Publish failures are logged and never affect
// the execution.
type ExecutionPublisher struct {
	publisher EventPublisher
	logger    *slog.Logger
}

func NewExecutionPublisher(publisher EventPublisher, logger *slog.Logger) *ExecutionPublisher {
	return &ExecutionPublisher{
		publisher: publisher,
		logger:    logger.With("module", "execution_publisher"),
	}
}

func (p *ExecutionPublisher) ExecutionStarted(ctx context.Context, execution *models.Execution) {
	p.publish(ctx, execution, events.NewExecutionStarted(execution))
}

func (p *ExecutionPublisher) ExecutionFinished(ctx context.Context, execution *models.Execution) {
	p.publish(ctx, execution, events.NewExecutionFinished(execution))
}

func (p *ExecutionPublisher) publish(ctx context.Context, execution *models.Execution, event Event) {
	err := p.publisher.Publish(ctx, events.ExecutionsTopic, execution.WorkflowID, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish execution event",
			"event_type", event.GetType(),
			"execution_id", execution.ID,
			"workflow_id", execution.WorkflowID,
			"error", err)
	}
}
