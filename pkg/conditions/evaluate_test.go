package conditions

import (
	"encoding/json"
	"testing"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() map[string]any {
	return map[string]any{
		"matter": map[string]any{
			"status":   "open",
			"priority": 3,
			"budget":   "1500",
			"tags":     []any{"urgent", "litigation", 7},
			"parties": []any{
				map[string]any{"name": "Acme Corp"},
			},
			"notes":    "",
			"assignee": nil,
		},
		"client": map[string]any{
			"name":  "Jane Doe",
			"score": 42.5,
			"vip":   true,
		},
	}
}

func leaf(field string, operator models.Operator, value any) models.Leaf {
	return models.Leaf{Field: field, Operator: operator, Value: value}
}

func TestEvaluate_Leaves(t *testing.T) {
	tests := []struct {
		name     string
		leaf     models.Leaf
		expected bool
	}{
		{"equals string", leaf("matter.status", models.OperatorEquals, "open"), true},
		{"equals int vs float", leaf("matter.priority", models.OperatorEquals, 3.0), true},
		{"equals no string coercion", leaf("matter.priority", models.OperatorEquals, "3"), false},
		{"equals bool", leaf("client.vip", models.OperatorEquals, true), true},
		{"not-equals", leaf("matter.status", models.OperatorNotEquals, "closed"), true},
		{"not-equals same", leaf("matter.status", models.OperatorNotEquals, "open"), false},
		{"greater-than numeric", leaf("client.score", models.OperatorGreaterThan, 40), true},
		{"greater-than coerces string field", leaf("matter.budget", models.OperatorGreaterThan, 1000), true},
		{"less-than numeric", leaf("matter.priority", models.OperatorLessThan, 5), true},
		{"less-than uncoercible", leaf("matter.status", models.OperatorLessThan, 5), false},
		{"greater-than lexical", leaf("client.name", models.OperatorGreaterThan, "Adam"), true},
		{"greater-than bool never orders", leaf("client.vip", models.OperatorGreaterThan, 0), false},
		{"contains list", leaf("matter.tags", models.OperatorContains, "urgent"), true},
		{"contains list number", leaf("matter.tags", models.OperatorContains, 7.0), true},
		{"contains list miss", leaf("matter.tags", models.OperatorContains, "tax"), false},
		{"contains substring", leaf("client.name", models.OperatorContains, "Doe"), true},
		{"contains number as string", leaf("client.score", models.OperatorContains, "42"), true},
		{"indexed path", leaf("matter.parties.0.name", models.OperatorEquals, "Acme Corp"), true},
		{"index out of range is missing", leaf("matter.parties.3.name", models.OperatorEquals, "Acme Corp"), false},
		{"is-empty missing", leaf("matter.deadline", models.OperatorIsEmpty, nil), true},
		{"is-empty empty string", leaf("matter.notes", models.OperatorIsEmpty, nil), true},
		{"is-empty null", leaf("matter.assignee", models.OperatorIsEmpty, nil), true},
		{"is-empty present", leaf("matter.status", models.OperatorIsEmpty, nil), false},
		{"missing equals", leaf("matter.deadline", models.OperatorEquals, nil), false},
		{"missing not-equals", leaf("matter.deadline", models.OperatorNotEquals, "x"), false},
		{"malformed path", leaf("matter..status", models.OperatorEquals, "open"), false},
		{"malformed path is-empty", leaf("", models.OperatorIsEmpty, nil), false},
		{"unknown operator", leaf("matter.status", "regex", "o.*"), false},
	}

	data := testData()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.leaf, data))
		})
	}
}

func TestEvaluate_Composites(t *testing.T) {
	open := leaf("matter.status", models.OperatorEquals, "open")
	closed := leaf("matter.status", models.OperatorEquals, "closed")

	tests := []struct {
		name     string
		expr     models.Condition
		expected bool
	}{
		{"nil", nil, true},
		{"and all true", models.And{Operands: []models.Condition{open, leaf("client.vip", models.OperatorEquals, true)}}, true},
		{"and one false", models.And{Operands: []models.Condition{open, closed}}, false},
		{"or one true", models.Or{Operands: []models.Condition{closed, open}}, true},
		{"or all false", models.Or{Operands: []models.Condition{closed}}, false},
		{"not", models.Not{Operand: closed}, true},
		{"nested", models.Not{Operand: models.And{Operands: []models.Condition{open, models.Or{Operands: []models.Condition{closed}}}}}, true},
		{"empty and fails closed", models.And{}, false},
		{"empty or fails closed", models.Or{}, false},
		{"not without operand fails closed", models.Not{}, false},
	}

	data := testData()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.expr, data))
		})
	}
}

func TestEvaluate_FirstOperandDecides(t *testing.T) {
	data := testData()
	closed := leaf("matter.status", models.OperatorEquals, "closed")
	malformed := leaf("", models.OperatorEquals, nil)

	and := models.And{Operands: []models.Condition{closed, models.Not{Operand: malformed}}}
	assert.False(t, Evaluate(and, data))

	or := models.Or{Operands: []models.Condition{models.Not{Operand: closed}, malformed}}
	assert.True(t, Evaluate(or, data))
}

func TestEvaluateExpr_FromJSON(t *testing.T) {
	var expr models.ConditionExpr

	err := json.Unmarshal([]byte(`{"op": "AND", "operands": [
		{"field": "matter.priority", "operator": "greater-than", "value": 2},
		{"field": "matter.tags", "operator": "contains", "value": "litigation"}
	]}`), &expr)
	require.NoError(t, err)

	assert.True(t, EvaluateExpr(&expr, testData()))
	assert.True(t, EvaluateExpr(nil, testData()))
}

func TestLookup(t *testing.T) {
	data := testData()

	value, found, err := Lookup(data, "matter.parties.0.name")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Acme Corp", value)

	_, found, err = Lookup(data, "matter.status.length")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = Lookup(data, "matter.")
	assert.ErrorIs(t, err, ErrMalformedPath)

	typed := map[string]any{"ids": []string{"a", "b"}, "counts": map[string]int{"x": 1}}

	value, found, err = Lookup(typed, "ids.1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", value)

	value, found, err = Lookup(typed, "counts.x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, value)
}
