package models

import (
	"encoding/json"
	"fmt"
)

// EncodeTrigger serializes a trigger config for storage.
func EncodeTrigger(trigger TriggerConfig) ([]byte, error) {
	data, err := json.Marshal(trigger)
	if err != nil {
		return nil, fmt.Errorf("encode trigger: %w", err)
	}

	return data, nil
}

// DecodeTrigger restores a trigger config, validating any embedded condition.
func DecodeTrigger(data []byte) (TriggerConfig, error) {
	var trigger TriggerConfig

	err := json.Unmarshal(data, &trigger)
	if err != nil {
		return TriggerConfig{}, fmt.Errorf("decode trigger: %w", err)
	}

	return trigger, nil
}

// EncodeActions serializes the ordered action chain.
func EncodeActions(actions []ActionConfig) ([]byte, error) {
	if actions == nil {
		actions = []ActionConfig{}
	}

	data, err := json.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}

	return data, nil
}

// DecodeActions restores the action chain in its declared order.
func DecodeActions(data []byte) ([]ActionConfig, error) {
	var actions []ActionConfig

	err := json.Unmarshal(data, &actions)
	if err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}

	if actions == nil {
		actions = []ActionConfig{}
	}

	return actions, nil
}

// EncodeCondition serializes a single condition tree.
func EncodeCondition(condition Condition) ([]byte, error) {
	data, err := json.Marshal(ConditionExpr{Condition: condition})
	if err != nil {
		return nil, fmt.Errorf("encode condition: %w", err)
	}

	return data, nil
}

// DecodeCondition parses a condition tree, rejecting malformed nodes.
func DecodeCondition(data []byte) (Condition, error) {
	var expr ConditionExpr

	err := json.Unmarshal(data, &expr)
	if err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}

	return expr.Condition, nil
}
