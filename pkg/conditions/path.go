package conditions

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
)

var ErrMalformedPath = errors.New("malformed field path")

// Lookup resolves a dotted path such as "matter.parties.0.name" against data.
// Map keys are followed by name and list elements by numeric index. found is
// false when any segment is absent; err is set only for a malformed path.
func Lookup(data map[string]any, path string) (value any, found bool, err error) {
	if strings.TrimSpace(path) == "" {
		return nil, false, ErrMalformedPath
	}

	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, false, ErrMalformedPath
		}
	}

	var current any = data

	for _, segment := range segments {
		next, ok := step(current, segment)
		if !ok {
			return nil, false, nil
		}

		current = next
	}

	return current, true, nil
}

func step(current any, segment string) (any, bool) {
	switch node := current.(type) {
	case map[string]any:
		value, ok := node[segment]

		return value, ok
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(node) {
			return nil, false
		}

		return node[index], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(current)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		value := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !value.IsValid() {
			return nil, false
		}

		return value.Interface(), true
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= rv.Len() {
			return nil, false
		}

		return rv.Index(index).Interface(), true
	default:
		return nil, false
	}
}
