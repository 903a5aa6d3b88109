// Package schedule turns the cron schedules of active workflows into schedule.reached events.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/matterflow/pkg/eventbus"
	"github.com/dukex/matterflow/pkg/events"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const DefaultRefreshInterval = time.Minute

// Validate checks a standard five field cron expression.
func Validate(expr string) error {
	_, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	return nil
}

// ScheduleReceiver keeps one cron entry per distinct schedule of the active
// schedule.reached workflows and publishes an event each time one fires.
type ScheduleReceiver struct {
	definitions persistence.DefinitionStore
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	refresh     time.Duration
	cron        *cron.Cron
	jobs        map[string]cron.EntryID // maps cron expression to entry ID
	mutex       sync.Mutex
	cancel      context.CancelFunc
	now         func() time.Time
}

// NewScheduleReceiver creates a new schedule receiver.
func NewScheduleReceiver(
	definitions persistence.DefinitionStore,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	refresh time.Duration,
) *ScheduleReceiver {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}

	logger = logger.With("module", "schedule_receiver")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	return &ScheduleReceiver{
		definitions: definitions,
		publisher:   publisher,
		logger:      logger,
		refresh:     refresh,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		jobs: make(map[string]cron.EntryID),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start syncs the schedules, starts the scheduler and keeps re-syncing every
// refresh interval until ctx is done or Stop is called.
func (r *ScheduleReceiver) Start(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Starting schedule receiver", "refresh", r.refresh)

	err := r.Sync(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.cron.Start()

	go r.refreshLoop(ctx)

	r.logger.InfoContext(ctx, "Schedule receiver started successfully")

	return nil
}

func (r *ScheduleReceiver) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.Sync(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "Failed to sync schedules", "error", err)
			}
		}
	}
}

// Sync reconciles the cron entries with the schedules of the active workflows.
func (r *ScheduleReceiver) Sync(ctx context.Context) error {
	workflows, err := r.definitions.ActiveWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active workflows: %w", err)
	}

	wanted := make(map[string]bool)

	for _, workflow := range workflows {
		if workflow.Trigger.Type != models.TriggerScheduleReached || workflow.Trigger.Schedule == "" {
			continue
		}

		wanted[workflow.Trigger.Schedule] = true
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for expr, entryID := range r.jobs {
		if !wanted[expr] {
			r.cron.Remove(entryID)
			delete(r.jobs, expr)
			r.logger.InfoContext(ctx, "Removed cron job", "cron", expr)
		}
	}

	for expr := range wanted {
		if _, exists := r.jobs[expr]; exists {
			continue
		}

		entryID, err := r.cron.AddFunc(expr, func() { r.fire(context.Background(), expr) })
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping invalid schedule", "cron", expr, "error", err)

			continue
		}

		r.jobs[expr] = entryID
		r.logger.InfoContext(ctx, "Added cron job", "cron", expr, "entry_id", entryID)
	}

	return nil
}

// Schedules returns the cron expressions currently scheduled.
func (r *ScheduleReceiver) Schedules() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	schedules := make([]string, 0, len(r.jobs))
	for expr := range r.jobs {
		schedules = append(schedules, expr)
	}

	return schedules
}

func (r *ScheduleReceiver) fire(ctx context.Context, expr string) {
	logger := r.logger.With("cron", expr)

	event := events.NewDomainEventReceived(models.Event{
		Type: models.TriggerScheduleReached,
		Data: map[string]any{
			"schedule": expr,
			"fired_at": r.now().Format(time.RFC3339),
		},
	})

	err := r.publisher.Publish(ctx, events.EventsTopic, expr, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish schedule event", "error", err)

		return
	}

	logger.DebugContext(ctx, "Published schedule event", "event_id", event.Event.ID)
}

// Stop halts the scheduler and waits for running jobs.
func (r *ScheduleReceiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping schedule receiver")

	if r.cancel != nil {
		r.cancel()
	}

	<-r.cron.Stop().Done()

	r.mutex.Lock()
	for expr, entryID := range r.jobs {
		r.cron.Remove(entryID)
		delete(r.jobs, expr)
	}
	r.mutex.Unlock()

	return nil
}
