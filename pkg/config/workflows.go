// Package config loads workflow definitions from YAML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/matterflow/pkg/models"
	"gopkg.in/yaml.v3"
)

var ErrInvalidWorkflowFile = errors.New("invalid workflow file")

// WorkflowFile is the layout of a definitions file:
//
//	workflows:
//	  - id: notify-closing
//	    name: Notify on closing
//	    trigger:
//	      type: matter.status_changed
//	      filters: {matter.status: CLOSED}
//	    actions:
//	      - kind: log
//	        params: {message: "matter {{ .trigger.matter.id }} closed"}
type WorkflowFile struct {
	Workflows []map[string]any `yaml:"workflows"`
}

// LoadWorkflows reads the definitions in path. Entries go through the JSON
// codec of the models, so keys and condition trees use the wire format.
// Workflows are active unless is_active is set to false.
func LoadWorkflows(path string) ([]*models.Workflow, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	return ParseWorkflows(data)
}

// ParseWorkflows decodes a definitions document.
func ParseWorkflows(data []byte) ([]*models.Workflow, error) {
	var file WorkflowFile

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkflowFile, err)
	}

	workflows := make([]*models.Workflow, 0, len(file.Workflows))
	seen := make(map[string]bool, len(file.Workflows))

	for i, entry := range file.Workflows {
		if _, ok := entry["is_active"]; !ok {
			entry["is_active"] = true
		}

		encoded, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: workflows[%d]: %w", ErrInvalidWorkflowFile, i, err)
		}

		var workflow models.Workflow

		err = json.Unmarshal(encoded, &workflow)
		if err != nil {
			return nil, fmt.Errorf("%w: workflows[%d]: %w", ErrInvalidWorkflowFile, i, err)
		}

		if workflow.ID == "" {
			return nil, fmt.Errorf("%w: workflows[%d]: id is required", ErrInvalidWorkflowFile, i)
		}

		if seen[workflow.ID] {
			return nil, fmt.Errorf("%w: workflows[%d]: duplicate id %q", ErrInvalidWorkflowFile, i, workflow.ID)
		}

		seen[workflow.ID] = true

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}
