package testutil

import (
	"testing"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestCreateTestWorkflow(t *testing.T) {
	workflow := CreateTestWorkflow()
	assert.NotEmpty(t, workflow.ID)
	assert.True(t, workflow.IsActive)
	assert.Equal(t, models.TriggerMatterStatusChanged, workflow.Trigger.Type)
	assert.Len(t, workflow.Actions, 1)

	workflow = CreateTestWorkflow(
		WithID("wf-1"),
		WithActive(false),
		WithFilter("matter.status", "CLOSED"),
		WithCondition(models.Leaf{Field: "matter.priority", Operator: models.OperatorGreaterThan, Value: 2}),
		WithActions(CreateTestAction("transform", nil), CreateTestAction("log", nil)),
	)
	assert.Equal(t, "wf-1", workflow.ID)
	assert.False(t, workflow.IsActive)
	assert.Equal(t, "CLOSED", workflow.Trigger.Filters["matter.status"])
	assert.NotNil(t, workflow.Trigger.Condition)
	assert.Len(t, workflow.Actions, 2)

	scheduled := CreateTestWorkflow(WithSchedule("0 2 * * *"))
	assert.Equal(t, models.TriggerScheduleReached, scheduled.Trigger.Type)
	assert.Equal(t, "0 2 * * *", scheduled.Trigger.Schedule)
}
