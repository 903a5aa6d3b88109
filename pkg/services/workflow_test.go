package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/matterflow/pkg/actions/log"
	"github.com/dukex/matterflow/pkg/models"
	"github.com/dukex/matterflow/pkg/persistence/file"
	"github.com/dukex/matterflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry() *registry.Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewRegistry(logger)
	reg.RegisterPlugin(log.NewAction(logger))

	return reg
}

func newTestWorkflow(name string) *models.Workflow {
	return &models.Workflow{
		Name:     name,
		IsActive: true,
		Trigger: models.TriggerConfig{
			Type:    models.TriggerMatterStatusChanged,
			Filters: map[string]any{"matter.status": "CLOSED"},
		},
		Actions: []models.ActionConfig{
			{Kind: log.Kind, Params: map[string]any{"message": "matter {{ .trigger.matter.id }} closed"}},
		},
	}
}

func TestNewWorkflow(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persistence, newRegistry())

	assert.NotNil(t, service)
	assert.Equal(t, persistence, service.persistence)
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = NewWorkflow(nil, nil).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestWorkflow_Create(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persistence, newRegistry())

	created, err := service.Create(t.Context(), newTestWorkflow("Notify on closing"))
	require.NoError(t, err)
	require.NotNil(t, created)

	// Verify ID was generated
	assert.NotEmpty(t, created.ID)

	// Verify timestamps were set
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	stored, err := persistence.WorkflowRepository().WorkflowByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notify on closing", stored.Name)
	assert.Len(t, stored.Actions, 1)
}

func TestWorkflow_Create_NoActions(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	workflow := newTestWorkflow("Nothing to do")
	workflow.Actions = nil

	created, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)
	assert.NotNil(t, created.Actions)
	assert.Empty(t, created.Actions)
}

func TestWorkflow_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Workflow)
		code   string
		target error
	}{
		{"short name", func(w *models.Workflow) { w.Name = "ab" }, "INVALID_WORKFLOW", ErrInvalidWorkflow},
		{"missing trigger type", func(w *models.Workflow) { w.Trigger.Type = "" }, "INVALID_WORKFLOW", ErrInvalidWorkflow},
		{
			"schedule trigger without schedule",
			func(w *models.Workflow) { w.Trigger = models.TriggerConfig{Type: models.TriggerScheduleReached} },
			"INVALID_SCHEDULE",
			ErrInvalidWorkflow,
		},
		{
			"invalid trigger condition",
			func(w *models.Workflow) { w.Trigger.Condition = models.NewConditionExpr(models.And{}) },
			"INVALID_CONDITION",
			ErrInvalidWorkflow,
		},
		{
			"invalid action condition",
			func(w *models.Workflow) {
				w.Actions[0].Condition = models.NewConditionExpr(models.Leaf{Field: "a", Operator: "regex"})
			},
			"INVALID_CONDITION",
			ErrInvalidWorkflow,
		},
		{
			"invalid schema",
			func(w *models.Workflow) { w.Trigger.Schema = map[string]any{"type": 42} },
			"INVALID_SCHEMA",
			ErrInvalidWorkflow,
		},
		{
			"unknown action kind",
			func(w *models.Workflow) { w.Actions[0].Kind = "send_fax" },
			"UNKNOWN_ACTION_KIND",
			ErrUnknownActionKind,
		},
	}

	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := newTestWorkflow("Validation target")
			tt.mutate(workflow)

			err := service.Validate(workflow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}

	assert.ErrorIs(t, service.Validate(nil), ErrWorkflowNil)
}

func TestWorkflow_Validate_Schedule(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	workflow := newTestWorkflow("Nightly overdue check")
	workflow.Trigger = models.TriggerConfig{Type: models.TriggerScheduleReached, Schedule: "0 2 * * *"}

	require.NoError(t, service.Validate(workflow))

	workflow.Trigger.Schedule = "every night"
	err := service.Validate(workflow)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_FetchByID(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	created, err := service.Create(t.Context(), newTestWorkflow("Fetch me"))
	require.NoError(t, err)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Name, fetched.Name)

	_, err = service.FetchByID(t.Context(), "missing")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflow_Update(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	created, err := service.Create(t.Context(), newTestWorkflow("Original name"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	replacement := newTestWorkflow("Updated name")
	replacement.IsActive = false

	updated, err := service.Update(t.Context(), created.ID, replacement)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Updated name", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	_, err = service.Update(t.Context(), "missing", newTestWorkflow("Does not matter"))
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_Patch(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	created, err := service.Create(t.Context(), newTestWorkflow("Patch target"))
	require.NoError(t, err)

	inactive := false
	patched, err := service.Patch(t.Context(), created.ID, PatchWorkflowRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, patched.IsActive)
	assert.Equal(t, "Patch target", patched.Name)
	assert.Len(t, patched.Actions, 1)

	short := "no"
	_, err = service.Patch(t.Context(), created.ID, PatchWorkflowRequest{Name: &short})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	stored, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Patch target", stored.Name)
}

func TestWorkflow_Delete(t *testing.T) {
	persistence := file.NewPersistence(t.TempDir())
	service := NewWorkflow(persistence, newRegistry())

	created, err := service.Create(t.Context(), newTestWorkflow("Delete me"))
	require.NoError(t, err)

	executionID, err := persistence.ExecutionRepository().CreateExecution(t.Context(), created.ID, map[string]any{})
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = persistence.ExecutionRepository().ExecutionByID(t.Context(), executionID)
	require.ErrorIs(t, err, ErrExecutionNotFound)

	err = service.Delete(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_ListWorkflows(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	names := []string{"Charlie flow", "Alpha flow", "Bravo flow"}
	for i, name := range names {
		workflow := newTestWorkflow(name)
		workflow.Owner = "firm-a"
		workflow.IsActive = i != 1

		_, err := service.Create(t.Context(), workflow)
		require.NoError(t, err)

		time.Sleep(2 * time.Millisecond)
	}

	other := newTestWorkflow("Other owner")
	other.Owner = "firm-b"
	other.Trigger = models.TriggerConfig{Type: models.TriggerClientCreated}

	_, err := service.Create(t.Context(), other)
	require.NoError(t, err)

	t.Run("defaults sort newest first", func(t *testing.T) {
		resp, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{})
		require.NoError(t, err)
		require.Len(t, resp.Workflows, 4)
		assert.Equal(t, "Other owner", resp.Workflows[0].Name)
		assert.Equal(t, int64(4), resp.TotalCount)
		assert.False(t, resp.HasNextPage)
	})

	t.Run("by name ascending with pagination", func(t *testing.T) {
		resp, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{
			Owner: "firm-a", SortBy: "name", SortOrder: "asc", Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, resp.Workflows, 2)
		assert.Equal(t, "Alpha flow", resp.Workflows[0].Name)
		assert.Equal(t, "Bravo flow", resp.Workflows[1].Name)
		assert.Equal(t, int64(3), resp.TotalCount)
		assert.True(t, resp.HasNextPage)

		resp, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{
			Owner: "firm-a", SortBy: "name", SortOrder: "asc", Limit: 2, Offset: 2,
		})
		require.NoError(t, err)
		require.Len(t, resp.Workflows, 1)
		assert.Equal(t, "Charlie flow", resp.Workflows[0].Name)
		assert.False(t, resp.HasNextPage)
	})

	t.Run("active and trigger filters", func(t *testing.T) {
		active := true

		resp, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{
			Active:      &active,
			TriggerType: models.TriggerMatterStatusChanged,
		})
		require.NoError(t, err)
		assert.Len(t, resp.Workflows, 2)
	})

	t.Run("invalid sort", func(t *testing.T) {
		_, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{SortBy: "owner"})
		require.ErrorIs(t, err, ErrInvalidSortField)

		_, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{SortOrder: "sideways"})
		require.ErrorIs(t, err, ErrInvalidSortOrder)
	})

	t.Run("offset past the end", func(t *testing.T) {
		resp, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{Offset: 50})
		require.NoError(t, err)
		assert.Empty(t, resp.Workflows)
		assert.Equal(t, int64(4), resp.TotalCount)
	})
}

func TestWorkflow_Import(t *testing.T) {
	service := NewWorkflow(file.NewPersistence(t.TempDir()), newRegistry())

	first := newTestWorkflow("Imported rule")
	first.ID = "imported"

	require.NoError(t, service.Import(t.Context(), []*models.Workflow{first}))

	stored, err := service.FetchByID(t.Context(), "imported")
	require.NoError(t, err)
	createdAt := stored.CreatedAt

	again := newTestWorkflow("Imported rule v2")
	again.ID = "imported"

	require.NoError(t, service.Import(t.Context(), []*models.Workflow{again}))

	stored, err = service.FetchByID(t.Context(), "imported")
	require.NoError(t, err)
	assert.Equal(t, "Imported rule v2", stored.Name)
	assert.True(t, createdAt.Equal(stored.CreatedAt))

	broken := newTestWorkflow("Broken import")
	broken.ID = "broken"
	broken.Actions[0].Kind = "send_fax"

	valid := newTestWorkflow("Valid import")
	valid.ID = "valid"

	err = service.Import(t.Context(), []*models.Workflow{valid, broken})
	require.ErrorIs(t, err, ErrUnknownActionKind)

	_, err = service.FetchByID(t.Context(), "valid")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
