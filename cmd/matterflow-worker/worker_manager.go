package main

import (
	"context"
	"log/slog"

	"github.com/dukex/matterflow/pkg/eventbus"
	"github.com/dukex/matterflow/pkg/events"
	"github.com/dukex/matterflow/pkg/receivers/queue"
	"github.com/dukex/matterflow/pkg/workflow"
)

// WorkerManager consumes domain events from the bus and dispatches them to the
// matching workflows. When a queue receiver is set it also forwards the events
// pushed to Redis onto the bus.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	engine   *workflow.Engine
	eventBus eventbus.EventBus
	queue    *queue.Receiver
}

func NewWorkerManager(
	id string,
	engine *workflow.Engine,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	queueReceiver *queue.Receiver,
) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "matterflow-worker", "worker_id", id),
		engine:   engine,
		eventBus: eventBus,
		queue:    queueReceiver,
	}
}

// Start subscribes to the events topic and returns once the subscription is
// live. Consumption stops when ctx is cancelled.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.DomainEventReceivedEvent, w.handleDomainEvent)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx, events.EventsTopic)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if w.queue != nil {
		go func() {
			err := w.queue.Run(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "Queue receiver stopped", "error", err)
			}
		}()
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// handleDomainEvent never returns the errors of individual workflows: those are
// recorded on their executions, and a Nack would only redeliver the event to
// the workflows that already ran.
func (w *WorkerManager) handleDomainEvent(ctx context.Context, event any) error {
	received, ok := event.(*events.DomainEventReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for DomainEventReceived")

		return nil
	}

	logger := w.logger.With(
		"event_id", received.Event.ID,
		"event_type", received.Event.Type,
	)
	logger.InfoContext(ctx, "Processing domain event")

	if received.Event.Data == nil {
		received.Event.Data = map[string]any{}
	}

	executions, err := w.engine.Dispatch(ctx, received.Event)
	if err != nil {
		logger.ErrorContext(ctx, "Dispatch finished with errors", "error", err)
	}

	logger.InfoContext(ctx, "Domain event processed", "executions", len(executions))

	return nil
}
