package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWorkflow() *Workflow {
	return &Workflow{
		ID:       "wf-1",
		Name:     "Welcome new clients",
		IsActive: true,
		Trigger: TriggerConfig{
			Type:    TriggerClientCreated,
			Filters: map[string]any{"client.type": "business"},
			Condition: NewConditionExpr(And{Operands: []Condition{
				Leaf{Field: "client.score", Operator: OperatorGreaterThan, Value: 10.0},
				Not{Operand: Leaf{Field: "client.email", Operator: OperatorIsEmpty}},
			}}),
		},
		Actions: []ActionConfig{
			{ID: "email", Kind: "send_email", Params: map[string]any{"to": "{{ .trigger.client.email }}"}},
			{
				Kind:            "create_task",
				Params:          map[string]any{"title": "Call client"},
				Condition:       NewConditionExpr(Leaf{Field: "client.vip", Operator: OperatorEquals, Value: true}),
				ContinueOnError: true,
			},
		},
	}
}

func TestWorkflow_Validation_Valid(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(sampleWorkflow())
	assert.NoError(t, err)
}

func TestWorkflow_Validation_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Workflow)
		field  string
	}{
		{"missing name", func(w *Workflow) { w.Name = "" }, "Name"},
		{"short name", func(w *Workflow) { w.Name = "ab" }, "Name"},
		{"missing trigger type", func(w *Workflow) { w.Trigger.Type = "" }, "Type"},
		{"missing action kind", func(w *Workflow) { w.Actions[0].Kind = "" }, "Kind"},
		{"bad schedule", func(w *Workflow) { w.Trigger.Schedule = "every tuesday" }, "Schedule"},
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := sampleWorkflow()
			tt.mutate(workflow)

			err := validate.Struct(workflow)
			require.Error(t, err)

			var validationErrors validator.ValidationErrors
			require.True(t, errors.As(err, &validationErrors))
			assert.Equal(t, tt.field, validationErrors[0].Field())
		})
	}
}

func TestActionConfig_ResultKey(t *testing.T) {
	assert.Equal(t, "email", ActionConfig{ID: "email", Kind: "send_email"}.ResultKey())
	assert.Equal(t, "send_email", ActionConfig{Kind: "send_email"}.ResultKey())
}

func TestConditionExpr_UnmarshalJSON(t *testing.T) {
	raw := `{
		"op": "OR",
		"operands": [
			{"field": "matter.status", "operator": "equals", "value": "closed"},
			{"op": "NOT", "operands": [{"field": "matter.tags", "operator": "contains", "value": "urgent"}]}
		]
	}`

	var expr ConditionExpr

	err := json.Unmarshal([]byte(raw), &expr)
	require.NoError(t, err)

	expected := Or{Operands: []Condition{
		Leaf{Field: "matter.status", Operator: OperatorEquals, Value: "closed"},
		Not{Operand: Leaf{Field: "matter.tags", Operator: OperatorContains, Value: "urgent"}},
	}}
	assert.Equal(t, expected, expr.Condition)
}

func TestConditionExpr_UnmarshalJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown op", `{"op": "XOR", "operands": [{"field": "a", "operator": "equals", "value": 1}]}`},
		{"unknown operator", `{"field": "a", "operator": "matches", "value": 1}`},
		{"missing field", `{"operator": "equals", "value": 1}`},
		{"empty AND", `{"op": "AND", "operands": []}`},
		{"NOT with two operands", `{"op": "NOT", "operands": [{"field": "a", "operator": "is-empty"}, {"field": "b", "operator": "is-empty"}]}`},
		{"not an object", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var expr ConditionExpr

			err := json.Unmarshal([]byte(tt.raw), &expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCondition)
		})
	}
}

func TestConditionExpr_IsEmptyOmitsValue(t *testing.T) {
	data, err := EncodeCondition(Leaf{Field: "client.phone", Operator: OperatorIsEmpty})
	require.NoError(t, err)
	assert.JSONEq(t, `{"field": "client.phone", "operator": "is-empty"}`, string(data))

	data, err = EncodeCondition(Leaf{Field: "client.vip", Operator: OperatorEquals, Value: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"field": "client.vip", "operator": "equals", "value": false}`, string(data))
}

func TestValidateCondition(t *testing.T) {
	assert.NoError(t, ValidateCondition(nil))
	assert.NoError(t, ValidateCondition(Leaf{Field: "a", Operator: OperatorEquals, Value: 1}))
	assert.ErrorIs(t, ValidateCondition(And{}), ErrInvalidCondition)
	assert.ErrorIs(t, ValidateCondition(Or{Operands: []Condition{nil}}), ErrInvalidCondition)
	assert.ErrorIs(t, ValidateCondition(Not{}), ErrInvalidCondition)
	assert.ErrorIs(t, ValidateCondition(Leaf{Field: "a", Operator: "regex"}), ErrInvalidCondition)
}

func TestCodec_RoundTrip(t *testing.T) {
	workflow := sampleWorkflow()

	triggerBytes, err := EncodeTrigger(workflow.Trigger)
	require.NoError(t, err)

	actionBytes, err := EncodeActions(workflow.Actions)
	require.NoError(t, err)

	trigger, err := DecodeTrigger(triggerBytes)
	require.NoError(t, err)

	actions, err := DecodeActions(actionBytes)
	require.NoError(t, err)

	assert.Equal(t, workflow.Trigger.Type, trigger.Type)
	assert.Equal(t, workflow.Trigger.Filters, trigger.Filters)
	assert.Equal(t, workflow.Trigger.Condition.Tree(), trigger.Condition.Tree())

	require.Len(t, actions, 2)
	assert.Equal(t, "email", actions[0].ID)
	assert.Equal(t, ActionKind("create_task"), actions[1].Kind)
	assert.True(t, actions[1].ContinueOnError)
	assert.Equal(t, workflow.Actions[1].Condition.Tree(), actions[1].Condition.Tree())
	assert.Nil(t, actions[0].Condition)
}

func TestCodec_EmptyActions(t *testing.T) {
	data, err := EncodeActions(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	actions, err := DecodeActions([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestCodec_DecodeErrors(t *testing.T) {
	_, err := DecodeTrigger([]byte(`{"type": "matter.created", "condition": {"op": "AND", "operands": []}}`))
	assert.ErrorIs(t, err, ErrInvalidCondition)

	_, err = DecodeActions([]byte(`{"kind": "log"}`))
	assert.Error(t, err)

	_, err = DecodeCondition([]byte(`{"field": "x", "operator": "nope"}`))
	assert.ErrorIs(t, err, ErrInvalidCondition)

	condition, err := DecodeCondition([]byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, condition)
}

func TestExecution_StateMachine(t *testing.T) {
	now := time.Now()
	execution := NewExecution("exec-1", "wf-1", map[string]any{"a": 1}, now)

	assert.Equal(t, ExecutionStatusRunning, execution.Status)
	assert.Nil(t, execution.FinishedAt)

	require.NoError(t, execution.AppendStep(StepResult{ActionKind: "log", Outcome: StepOutcomeSuccess}))

	err := execution.Finalize(ExecutionStatusRunning, nil, "", now)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	require.NoError(t, execution.Finalize(ExecutionStatusSucceeded, map[string]any{"log": map[string]any{}}, "", now))
	assert.Equal(t, ExecutionStatusSucceeded, execution.Status)
	require.NotNil(t, execution.FinishedAt)

	err = execution.Finalize(ExecutionStatusFailed, nil, "late", now)
	require.ErrorIs(t, err, ErrExecutionFinalized)
	assert.Equal(t, ExecutionStatusSucceeded, execution.Status)

	err = execution.AppendStep(StepResult{ActionKind: "log", Outcome: StepOutcomeSuccess})
	require.ErrorIs(t, err, ErrExecutionFinalized)
	assert.Len(t, execution.StepResults, 1)
}

func TestDeriveStatus(t *testing.T) {
	step := func(outcome StepOutcome) StepResult { return StepResult{Outcome: outcome} }

	tests := []struct {
		name     string
		steps    []StepResult
		expected ExecutionStatus
	}{
		{"no steps", nil, ExecutionStatusSucceeded},
		{"all success", []StepResult{step(StepOutcomeSuccess), step(StepOutcomeSuccess)}, ExecutionStatusSucceeded},
		{"only skipped", []StepResult{step(StepOutcomeSkipped)}, ExecutionStatusSucceeded},
		{"all failed", []StepResult{step(StepOutcomeFailed), step(StepOutcomeSkipped)}, ExecutionStatusFailed},
		{"mixed", []StepResult{step(StepOutcomeSuccess), step(StepOutcomeFailed)}, ExecutionStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveStatus(tt.steps))
		})
	}
}
