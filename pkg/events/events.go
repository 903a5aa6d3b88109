// Package events defines the messages exchanged on the matterflow bus.
package events

import (
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Bus topics.
const (
	EventsTopic     = "matterflow.events"     // inbound domain events to dispatch
	ExecutionsTopic = "matterflow.executions" // execution lifecycle notifications
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DomainEventReceivedEvent EventType = "domain.event.received"

	ExecutionStartedEvent  EventType = "workflow.execution.started"
	ExecutionFinishedEvent EventType = "workflow.execution.finished"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func newBase(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// DomainEventReceived carries an application event to the worker for dispatch.
type DomainEventReceived struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func (DomainEventReceived) GetType() EventType {
	return DomainEventReceivedEvent
}

// NewDomainEventReceived wraps event, assigning it an id and timestamp if missing.
func NewDomainEventReceived(event models.Event) *DomainEventReceived {
	base := newBase(DomainEventReceivedEvent)

	if event.ID == "" {
		event.ID = base.ID
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = base.Timestamp
	}

	return &DomainEventReceived{BaseEvent: base, Event: event}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
}

func (ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

func NewExecutionStarted(execution *models.Execution) *ExecutionStarted {
	return &ExecutionStarted{
		BaseEvent:   newBase(ExecutionStartedEvent),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
	}
}

type ExecutionFinished struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.ExecutionStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Steps       int                    `json:"steps"`
}

func (ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

func NewExecutionFinished(execution *models.Execution) *ExecutionFinished {
	finished := &ExecutionFinished{
		BaseEvent:   newBase(ExecutionFinishedEvent),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      execution.Status,
		Error:       execution.Error,
		Steps:       len(execution.StepResults),
	}

	if execution.FinishedAt != nil {
		finished.Duration = execution.FinishedAt.Sub(execution.StartedAt)
	}

	return finished
}
