// Package main runs the scheduler that turns workflow cron schedules into schedule.reached events.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/matterflow/pkg/cmd"
	"github.com/dukex/matterflow/pkg/log"
	"github.com/dukex/matterflow/pkg/receivers/schedule"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("matterflow-scheduler")

	cmd := &cli.Command{
		Name:                  "matterflow-scheduler",
		Usage:                 "Publish schedule.reached events for scheduled workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (gochannel, kafka)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "refresh-interval",
				Usage:   "How often schedules are re-read from the store",
				Value:   schedule.DefaultRefreshInterval,
				Sources: cli.EnvVars("SCHEDULE_REFRESH_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Matterflow Scheduler")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(context.Background()); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			receiver := schedule.NewScheduleReceiver(
				persistence.WorkflowRepository(),
				eventBus,
				logger,
				command.Duration("refresh-interval"),
			)

			err := receiver.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start schedule receiver", "error", err)

				return nil
			}

			<-ctx.Done()

			return receiver.Stop(context.Background())
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
