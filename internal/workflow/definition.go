package workflow

import (
	"fmt"
	"strings"
)

// Step is one identified unit of work. Action is an opaque label resolved by
// the runner's action registry; Description feeds the tier classifier.
type Step struct {
	ID          string         `json:"id" yaml:"id"`
	Action      string         `json:"action" yaml:"action"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	With        map[string]any `json:"with,omitempty" yaml:"with,omitempty"`
}

// Clone returns a copy of the step with its own parameter map.
func (s Step) Clone() Step {
	clone := s
	if len(s.With) > 0 {
		clone.With = make(map[string]any, len(s.With))
		for key, value := range s.With {
			clone.With[key] = value
		}
	}
	return clone
}

// Workflow is a named, ordered list of steps executed one at a time.
type Workflow struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step        `json:"steps" yaml:"steps"`
	Runtime     RuntimeConfig `json:"runtime,omitempty" yaml:"runtime,omitempty"`
}

// RuntimeConfig carries execution hints for a workflow.
type RuntimeConfig struct {
	// MaxWorkers overrides the project pool size for this workflow. Zero keeps
	// the project default.
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// Clone returns a deep copy of the workflow.
func (w Workflow) Clone() Workflow {
	clone := Workflow{
		Name:        w.Name,
		Description: w.Description,
		Runtime:     w.Runtime,
	}
	if len(w.Steps) > 0 {
		clone.Steps = make([]Step, len(w.Steps))
		for i, step := range w.Steps {
			clone.Steps[i] = step.Clone()
		}
	}
	return clone
}

// Validate checks the workflow shape that must hold before a run starts.
// Per-step problems such as a missing id are reported by the runner when the
// step is reached so earlier steps still execute.
func (w *Workflow) Validate() error {
	if w == nil {
		return &ValidationError{Field: "workflow", Reason: "is required"}
	}
	if strings.TrimSpace(w.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if len(w.Steps) == 0 {
		return &ValidationError{Field: "steps", Reason: "at least one step is required"}
	}
	if w.Runtime.MaxWorkers < 0 {
		return &ValidationError{Field: "runtime.max_workers", Reason: "must be >= 0"}
	}
	return nil
}

// StepIDs returns the step identifiers in declaration order.
func (w Workflow) StepIDs() []string {
	ids := make([]string, 0, len(w.Steps))
	for _, step := range w.Steps {
		ids = append(ids, step.ID)
	}
	return ids
}

func validateStep(index int, step Step, done []StepResult) error {
	if strings.TrimSpace(step.ID) == "" {
		return &ValidationError{Field: fmt.Sprintf("steps[%d].id", index), Reason: "missing id"}
	}
	for _, prior := range done {
		if prior.StepID == step.ID {
			return &ValidationError{Field: fmt.Sprintf("steps[%d].id", index), Reason: fmt.Sprintf("duplicate id %q", step.ID)}
		}
	}
	return nil
}
