package workflow

import (
	"testing"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func matcherWorkflow(id string, trigger models.TriggerConfig) *models.Workflow {
	return &models.Workflow{ID: id, Name: "Matcher " + id, IsActive: true, Trigger: trigger}
}

func TestTriggerMatcher_Accepts(t *testing.T) {
	event := models.Event{
		Type: models.TriggerInvoiceOverdue,
		Data: map[string]any{
			"invoice":  map[string]any{"amount": 250.0, "currency": "EUR", "lines": []any{"fees", "costs"}},
			"client":   map[string]any{"tier": "gold"},
			"schedule": "0 9 * * 1",
		},
	}

	tests := []struct {
		name     string
		trigger  models.TriggerConfig
		expected bool
	}{
		{"type only", models.TriggerConfig{Type: models.TriggerInvoiceOverdue}, true},
		{"other type", models.TriggerConfig{Type: models.TriggerClientCreated}, false},
		{"plain filter", models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{"invoice.currency": "EUR"}}, true},
		{"plain filter mismatch", models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{"invoice.currency": "USD"}}, false},
		{"missing filter field", models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{"invoice.due": "2024-01-01"}}, false},
		{
			"predicate filter",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{
				"invoice.amount": map[string]any{"operator": "greater-than", "value": 100},
				"invoice.lines":  map[string]any{"operator": "contains", "value": "fees"},
			}},
			true,
		},
		{
			"predicate filter fails",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{
				"invoice.amount": map[string]any{"operator": "less-than", "value": 100},
			}},
			false,
		},
		{
			"predicate with unknown operator",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{
				"invoice.amount": map[string]any{"operator": "between", "value": 100},
			}},
			false,
		},
		{
			"object without operator compares by equality",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Filters: map[string]any{
				"client": map[string]any{"tier": "gold"},
			}},
			true,
		},
		{"schedule equal", models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Schedule: "0 9 * * 1"}, true},
		{"schedule differs", models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Schedule: "0 10 * * 1"}, false},
		{
			"schema valid",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Schema: map[string]any{
				"type":     "object",
				"required": []any{"invoice"},
				"properties": map[string]any{
					"invoice": map[string]any{
						"type":       "object",
						"properties": map[string]any{"amount": map[string]any{"type": "number", "minimum": 0}},
					},
				},
			}},
			true,
		},
		{
			"schema invalid payload",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Schema: map[string]any{
				"type":     "object",
				"required": []any{"matter"},
			}},
			false,
		},
		{
			"broken schema",
			models.TriggerConfig{Type: models.TriggerInvoiceOverdue, Schema: map[string]any{"type": 42}},
			false,
		},
	}

	matcher := NewTriggerMatcher(testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matcher.Accepts(tt.trigger, event))
		})
	}
}

func TestTriggerMatcher_Match(t *testing.T) {
	trigger := models.TriggerConfig{Type: models.TriggerClientCreated, Filters: map[string]any{"client.type": "business"}}

	first := matcherWorkflow("first", trigger)
	inactive := matcherWorkflow("inactive", trigger)
	inactive.IsActive = false
	conditioned := matcherWorkflow("conditioned", trigger)
	conditioned.Trigger.Condition = models.NewConditionExpr(models.Leaf{
		Field: "client.vip", Operator: models.OperatorEquals, Value: true,
	})
	last := matcherWorkflow("last", trigger)
	other := matcherWorkflow("other", models.TriggerConfig{Type: models.TriggerMatterCreated})

	candidates := []*models.Workflow{first, inactive, conditioned, nil, other, last}
	matcher := NewTriggerMatcher(testLogger())

	matches := matcher.Match(models.Event{
		Type: models.TriggerClientCreated,
		Data: map[string]any{"client": map[string]any{"type": "business", "vip": false}},
	}, candidates)
	assert.Equal(t, []*models.Workflow{first, last}, matches)

	matches = matcher.Match(models.Event{
		Type: models.TriggerClientCreated,
		Data: map[string]any{"client": map[string]any{"type": "business", "vip": true}},
	}, candidates)
	assert.Equal(t, []*models.Workflow{first, conditioned, last}, matches)

	matches = matcher.Match(models.Event{Type: models.TriggerMessageReceived}, candidates)
	assert.Empty(t, matches)
}
