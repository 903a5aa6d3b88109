package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence"
	"github.com/dukex/matterflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("matterflow_test"),
			postgres.WithUsername("matterflow"),
			postgres.WithPassword("matterflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func newWorkflow(active bool) *models.Workflow {
	return &models.Workflow{
		ID:       uuid.New().String(),
		Name:     "Overdue invoice reminder",
		IsActive: active,
		Owner:    "billing",
		Trigger: models.TriggerConfig{
			Type:    models.TriggerInvoiceOverdue,
			Filters: map[string]any{"invoice.currency": "EUR"},
			Condition: models.NewConditionExpr(models.Leaf{
				Field: "invoice.amount", Operator: models.OperatorGreaterThan, Value: 100.0,
			}),
		},
		Actions: []models.ActionConfig{
			{ID: "remind", Kind: "log", Params: map[string]any{"message": "Invoice {{ .trigger.invoice.id }} overdue"}},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	for _, table := range []string{"workflows", "executions"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestWorkflowRepository_CRUD(t *testing.T) {
	store, ctx, _ := setupTestDB(t)
	repo := store.WorkflowRepository()

	active := newWorkflow(true)
	inactive := newWorkflow(false)

	require.NoError(t, repo.Save(ctx, active))
	require.NoError(t, repo.Save(ctx, inactive))
	assert.False(t, active.CreatedAt.IsZero())

	loaded, err := repo.WorkflowByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.Name, loaded.Name)
	assert.Equal(t, "billing", loaded.Owner)
	assert.Equal(t, models.TriggerInvoiceOverdue, loaded.Trigger.Type)
	assert.Equal(t, active.Trigger.Condition.Tree(), loaded.Trigger.Condition.Tree())
	require.Len(t, loaded.Actions, 1)
	assert.Equal(t, "remind", loaded.Actions[0].ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := repo.ActiveWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, active.ID, activeOnly[0].ID)

	active.Name = "Renamed reminder"
	require.NoError(t, repo.Save(ctx, active))

	loaded, err = repo.WorkflowByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed reminder", loaded.Name)

	require.NoError(t, repo.Delete(ctx, active.ID))

	_, err = repo.WorkflowByID(ctx, active.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = repo.Delete(ctx, active.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := newWorkflow(true)
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	repo := store.ExecutionRepository()

	id, err := repo.CreateExecution(ctx, workflow.ID, map[string]any{"invoice": map[string]any{"id": "INV-7"}})
	require.NoError(t, err)

	execution, err := repo.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Nil(t, execution.FinishedAt)
	assert.Empty(t, execution.StepResults)

	step := models.StepResult{ActionID: "remind", ActionKind: "log", Outcome: models.StepOutcomeSuccess, Output: map[string]any{"ok": true}}
	require.NoError(t, repo.AppendStepResult(ctx, id, step))

	err = repo.FinalizeExecution(ctx, id, models.ExecutionStatusRunning, nil, "")
	require.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	require.NoError(t, repo.FinalizeExecution(ctx, id, models.ExecutionStatusSucceeded, map[string]any{"remind": map[string]any{"ok": true}}, ""))

	err = repo.FinalizeExecution(ctx, id, models.ExecutionStatusFailed, nil, "late")
	require.ErrorIs(t, err, models.ErrExecutionFinalized)

	err = repo.AppendStepResult(ctx, id, step)
	require.ErrorIs(t, err, models.ErrExecutionFinalized)

	execution, err = repo.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSucceeded, execution.Status)
	require.NotNil(t, execution.FinishedAt)
	require.Len(t, execution.StepResults, 1)
	assert.Equal(t, "remind", execution.StepResults[0].ActionID)
	assert.Equal(t, map[string]any{"remind": map[string]any{"ok": true}}, execution.Result)

	err = repo.AppendStepResult(ctx, uuid.New().String(), step)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_ConcurrentAppends(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := newWorkflow(true)
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	repo := store.ExecutionRepository()

	id, err := repo.CreateExecution(ctx, workflow.ID, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, repo.AppendStepResult(ctx, id, models.StepResult{ActionKind: "log", Outcome: models.StepOutcomeSuccess}))
		}()
	}

	wg.Wait()

	execution, err := repo.ExecutionByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, execution.StepResults, 20)
}

func TestDeleteWorkflow_CascadesExecutions(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := newWorkflow(true)
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	id, err := store.ExecutionRepository().CreateExecution(ctx, workflow.ID, nil)
	require.NoError(t, err)

	history, err := store.ExecutionRepository().GetByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, store.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err = store.ExecutionRepository().ExecutionByID(ctx, id)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestHealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}
