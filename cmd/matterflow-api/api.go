// Package main provides the Matterflow API server implementation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/matterflow/pkg/cmd"
	"github.com/dukex/matterflow/pkg/config"
	"github.com/dukex/matterflow/pkg/eventbus"
	"github.com/dukex/matterflow/pkg/metrics"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/dukex/matterflow/pkg/registry"
	"github.com/dukex/matterflow/pkg/services"
	"github.com/dukex/matterflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	metrics     *metrics.Metrics
	timeout     time.Duration
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	timeout time.Duration,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		eventBus:    eventBus,
		metrics:     metrics.New(),
		timeout:     timeout,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var publisher eventbus.EventPublisher
	if a.eventBus != nil {
		publisher = a.eventBus
	}

	engine := cmd.NewEngine(a.persistence, a.registry, a.logger, publisher, a.metrics, a.timeout)

	workflowService := services.NewWorkflow(a.persistence, a.registry)
	executionService := services.NewExecution(a.persistence, engine, a.timeout)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Matterflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Post("/events", handlers.DispatchEvent)
	app.Get("/actions", handlers.GetActions)
	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}

// importWorkflows seeds the store with the definitions of a YAML file.
func importWorkflows(
	ctx context.Context,
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	path string,
) error {
	workflows, err := config.LoadWorkflows(path)
	if err != nil {
		return err
	}

	err = services.NewWorkflow(persistence, registry).Import(ctx, workflows)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}

	logger.InfoContext(ctx, "Imported workflow definitions", "path", path, "count", len(workflows))

	return nil
}
