package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/matterflow/pkg/eventbus"
	"github.com/dukex/matterflow/pkg/metrics"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/dukex/matterflow/pkg/workflow"
)

// NewEngine wires the engine to the store and attaches the metrics and bus
// observers when they are given. timeout bounds the runs started by Dispatch.
func NewEngine(
	store persistence.Persistence,
	resolver workflow.ActionResolver,
	logger *slog.Logger,
	publisher eventbus.EventPublisher,
	collector *metrics.Metrics,
	timeout time.Duration,
) *workflow.Engine {
	opts := []workflow.Option{workflow.WithExecutionTimeout(timeout)}

	if collector != nil {
		opts = append(opts, workflow.WithObserver(collector))
	}

	if publisher != nil {
		opts = append(opts, workflow.WithObserver(eventbus.NewExecutionPublisher(publisher, logger)))
	}

	return workflow.NewEngine(
		store.WorkflowRepository(),
		store.ExecutionRepository(),
		resolver,
		logger,
		opts...,
	)
}
