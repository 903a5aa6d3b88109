package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCondition is returned when a condition tree violates its structural rules.
var ErrInvalidCondition = errors.New("invalid condition")

// Operator is a leaf comparison operator.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not-equals"
	OperatorGreaterThan Operator = "greater-than"
	OperatorLessThan    Operator = "less-than"
	OperatorContains    Operator = "contains"
	OperatorIsEmpty     Operator = "is-empty"
)

// Valid reports whether the operator belongs to the closed operator set.
func (o Operator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorGreaterThan, OperatorLessThan, OperatorContains, OperatorIsEmpty:
		return true
	default:
		return false
	}
}

// LogicalOp is the operator of a composite condition node.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
	LogicalNot LogicalOp = "NOT"
)

// Condition is a node of a boolean expression tree: one of Leaf, And, Or or Not.
type Condition interface {
	conditionNode()
}

// Leaf compares the value found at Field in the data against Value.
type Leaf struct {
	Field    string
	Operator Operator
	Value    any
}

// And holds when every operand holds.
type And struct {
	Operands []Condition
}

// Or holds when at least one operand holds.
type Or struct {
	Operands []Condition
}

// Not negates its single operand.
type Not struct {
	Operand Condition
}

func (Leaf) conditionNode() {}
func (And) conditionNode()  {}
func (Or) conditionNode()   {}
func (Not) conditionNode()  {}

// ConditionExpr is the serializable envelope of a Condition tree.
//
// Leaves encode as {"field", "operator", "value"}; composites as {"op", "operands"}.
type ConditionExpr struct {
	Condition Condition
}

// NewConditionExpr wraps a condition tree for storage in a definition.
func NewConditionExpr(c Condition) *ConditionExpr {
	return &ConditionExpr{Condition: c}
}

// Tree returns the wrapped condition, tolerating a nil receiver.
func (e *ConditionExpr) Tree() Condition {
	if e == nil {
		return nil
	}

	return e.Condition
}

func (e ConditionExpr) MarshalJSON() ([]byte, error) {
	wire, err := toWire(e.Condition)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wire)
}

func (e *ConditionExpr) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		e.Condition = nil

		return nil
	}

	condition, err := fromJSON(data)
	if err != nil {
		return err
	}

	e.Condition = condition

	return nil
}

// ValidateCondition checks operators and composite arity for the whole tree.
// A nil condition is valid and means "always proceed".
func ValidateCondition(c Condition) error {
	switch node := c.(type) {
	case nil:
		return nil
	case Leaf:
		if node.Field == "" {
			return fmt.Errorf("%w: leaf field is required", ErrInvalidCondition)
		}

		if !node.Operator.Valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, node.Operator)
		}

		return nil
	case And:
		return validateOperands(LogicalAnd, node.Operands)
	case Or:
		return validateOperands(LogicalOr, node.Operands)
	case Not:
		if node.Operand == nil {
			return fmt.Errorf("%w: NOT requires exactly one operand", ErrInvalidCondition)
		}

		return ValidateCondition(node.Operand)
	default:
		return fmt.Errorf("%w: unsupported node %T", ErrInvalidCondition, c)
	}
}

func validateOperands(op LogicalOp, operands []Condition) error {
	if len(operands) == 0 {
		return fmt.Errorf("%w: %s requires at least one operand", ErrInvalidCondition, op)
	}

	for _, operand := range operands {
		if operand == nil {
			return fmt.Errorf("%w: %s has a nil operand", ErrInvalidCondition, op)
		}

		err := ValidateCondition(operand)
		if err != nil {
			return err
		}
	}

	return nil
}

func toWire(c Condition) (map[string]any, error) {
	switch node := c.(type) {
	case nil:
		return nil, nil
	case Leaf:
		wire := map[string]any{
			"field":    node.Field,
			"operator": node.Operator,
		}
		if node.Value != nil || node.Operator != OperatorIsEmpty {
			wire["value"] = node.Value
		}

		return wire, nil
	case And:
		return compositeWire(LogicalAnd, node.Operands)
	case Or:
		return compositeWire(LogicalOr, node.Operands)
	case Not:
		return compositeWire(LogicalNot, []Condition{node.Operand})
	default:
		return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalidCondition, c)
	}
}

func compositeWire(op LogicalOp, operands []Condition) (map[string]any, error) {
	encoded := make([]map[string]any, 0, len(operands))

	for _, operand := range operands {
		wire, err := toWire(operand)
		if err != nil {
			return nil, err
		}

		encoded = append(encoded, wire)
	}

	return map[string]any{"op": op, "operands": encoded}, nil
}

type conditionWire struct {
	Field    string            `json:"field"`
	Operator Operator          `json:"operator"`
	Value    any               `json:"value"`
	Op       LogicalOp         `json:"op"`
	Operands []json.RawMessage `json:"operands"`
}

func fromJSON(data []byte) (Condition, error) {
	var wire conditionWire

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}

	if wire.Op == "" {
		leaf := Leaf{Field: wire.Field, Operator: wire.Operator, Value: wire.Value}

		return leaf, ValidateCondition(leaf)
	}

	operands := make([]Condition, 0, len(wire.Operands))

	for _, raw := range wire.Operands {
		operand, err := fromJSON(raw)
		if err != nil {
			return nil, err
		}

		operands = append(operands, operand)
	}

	var node Condition

	switch wire.Op {
	case LogicalAnd:
		node = And{Operands: operands}
	case LogicalOr:
		node = Or{Operands: operands}
	case LogicalNot:
		if len(operands) != 1 {
			return nil, fmt.Errorf("%w: NOT requires exactly one operand, got %d", ErrInvalidCondition, len(operands))
		}

		node = Not{Operand: operands[0]}
	default:
		return nil, fmt.Errorf("%w: unknown logical op %q", ErrInvalidCondition, wire.Op)
	}

	return node, ValidateCondition(node)
}
