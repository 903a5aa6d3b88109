// Package conditions evaluates condition trees against trigger and step data.
//
// Evaluation never fails: a malformed node or path evaluates to false.
package conditions

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/dukex/matterflow/pkg/models"
	"github.com/spf13/cast"
)

// Evaluate reports whether expr holds for data. A nil expr always holds.
func Evaluate(expr models.Condition, data map[string]any) bool {
	switch node := expr.(type) {
	case nil:
		return true
	case models.Leaf:
		return EvaluateLeaf(node, data)
	case models.And:
		if len(node.Operands) == 0 {
			return false
		}

		for _, operand := range node.Operands {
			if operand == nil || !Evaluate(operand, data) {
				return false
			}
		}

		return true
	case models.Or:
		if len(node.Operands) == 0 {
			return false
		}

		for _, operand := range node.Operands {
			if operand != nil && Evaluate(operand, data) {
				return true
			}
		}

		return false
	case models.Not:
		if node.Operand == nil {
			return false
		}

		return !Evaluate(node.Operand, data)
	default:
		return false
	}
}

// EvaluateExpr is Evaluate for the serializable envelope.
func EvaluateExpr(expr *models.ConditionExpr, data map[string]any) bool {
	return Evaluate(expr.Tree(), data)
}

// EvaluateLeaf resolves the leaf's field in data and applies its operator.
func EvaluateLeaf(leaf models.Leaf, data map[string]any) bool {
	actual, found, err := Lookup(data, leaf.Field)
	if err != nil {
		return false
	}

	return Compare(leaf.Operator, actual, found, leaf.Value)
}

// Compare applies operator to an already resolved field value.
func Compare(operator models.Operator, actual any, found bool, expected any) bool {
	if operator == models.OperatorIsEmpty {
		return !found || isEmpty(actual)
	}

	if !found {
		return false
	}

	switch operator {
	case models.OperatorEquals:
		return equal(actual, expected)
	case models.OperatorNotEquals:
		return !equal(actual, expected)
	case models.OperatorGreaterThan:
		cmp, ok := order(actual, expected)

		return ok && cmp > 0
	case models.OperatorLessThan:
		cmp, ok := order(actual, expected)

		return ok && cmp < 0
	case models.OperatorContains:
		return contains(actual, expected)
	default:
		return false
	}
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize folds every numeric kind into float64 so that 3, int64(3) and 3.0 compare equal.
func normalize(value any) any {
	if number, ok := value.(json.Number); ok {
		f, err := number.Float64()
		if err != nil {
			return number.String()
		}

		return f
	}

	if isNumber(value) {
		return reflect.ValueOf(value).Convert(reflect.TypeOf(float64(0))).Float()
	}

	switch node := value.(type) {
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = normalize(item)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, item := range node {
			out[key] = normalize(item)
		}

		return out
	default:
		return value
	}
}

func isNumber(value any) bool {
	if _, ok := value.(json.Number); ok {
		return true
	}

	if value == nil {
		return false
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// order returns -1, 0 or 1. ok is false when the operands cannot be ordered.
func order(a, b any) (int, bool) {
	if isNumber(a) || isNumber(b) {
		if isBool(a) || isBool(b) {
			return 0, false
		}

		left, err := cast.ToFloat64E(normalize(a))
		if err != nil {
			return 0, false
		}

		right, err := cast.ToFloat64E(normalize(b))
		if err != nil {
			return 0, false
		}

		switch {
		case left < right:
			return -1, true
		case left > right:
			return 1, true
		default:
			return 0, true
		}
	}

	left, okLeft := a.(string)
	right, okRight := b.(string)

	if !okLeft || !okRight {
		return 0, false
	}

	return strings.Compare(left, right), true
}

func isBool(value any) bool {
	_, ok := value.(bool)

	return ok
}

func contains(actual, expected any) bool {
	if actual != nil {
		rv := reflect.ValueOf(actual)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := range rv.Len() {
				if equal(rv.Index(i).Interface(), expected) {
					return true
				}
			}

			return false
		}
	}

	haystack, err := cast.ToStringE(actual)
	if err != nil {
		return false
	}

	needle, err := cast.ToStringE(expected)
	if err != nil {
		return false
	}

	return strings.Contains(haystack, needle)
}
