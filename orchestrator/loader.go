package orchestrator

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadWorkflow reads a workflow definition from a YAML file.
func LoadWorkflow(path string) (Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, fmt.Errorf("read workflow %s: %w", path, err)
	}

	wf, err := ParseWorkflow(data)
	if err != nil {
		return Workflow{}, fmt.Errorf("parse workflow %s: %w", path, err)
	}

	return wf, nil
}

// ParseWorkflow decodes and validates a YAML workflow definition. Unknown
// fields are rejected.
//
//	name: research
//	steps:
//	  - agent: planner
//	  - agent: writer
//	    input_mapping:
//	      topic: planner.topic
func ParseWorkflow(data []byte) (Workflow, error) {
	var wf Workflow

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&wf); err != nil {
		return Workflow{}, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}

	if err := wf.Validate(); err != nil {
		return Workflow{}, err
	}

	return wf, nil
}
