// Package template renders action parameters against the execution scope.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const marker = "{{"

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(max int) int {
		if max <= 0 {
			return 0
		}

		num := make([]byte, 1)

		_, err := rand.Read(num)
		if err != nil {
			return 0
		}

		return int(num[0]) % max
	},
	"json": func(value any) (string, error) {
		data, err := json.Marshal(value)

		return string(data), err
	},
	"default": func(fallback, value any) any {
		if value == nil || value == "" {
			return fallback
		}

		return value
	},
}

// NeedsTemplating reports whether input contains a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, marker)
}

// Render executes templateStr against data. Missing keys are an error.
// JSON objects and arrays, canonical numbers and booleans in the output are
// returned as typed values; anything else is returned as a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("param").
		Option("missingkey=error").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return coerce(buf.String())
}

func coerce(rendered string) (any, error) {
	result := strings.TrimSpace(rendered)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", result, err)
		}

		return jsonResult, nil
	}

	// "0042" stays a string
	if num, err := strconv.ParseFloat(result, 64); err == nil && strconv.FormatFloat(num, 'f', -1, 64) == result {
		return num, nil
	}

	if result == "true" || result == "false" {
		return result == "true", nil
	}

	return rendered, nil
}

// ResolveParams walks params and renders every string that contains a
// template. Other values are copied unchanged; the input is not modified.
func ResolveParams(params map[string]any, data any) (map[string]any, error) {
	resolved := make(map[string]any, len(params))

	for key, value := range params {
		out, err := resolveValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", key, err)
		}

		resolved[key] = out
	}

	return resolved, nil
}

func resolveValue(value any, data any) (any, error) {
	switch node := value.(type) {
	case string:
		if !NeedsTemplating(node) {
			return node, nil
		}

		return Render(node, data)
	case map[string]any:
		return ResolveParams(node, data)
	case []any:
		out := make([]any, len(node))

		for i, item := range node {
			resolved, err := resolveValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}

			out[i] = resolved
		}

		return out, nil
	default:
		return value, nil
	}
}
