package workflow

import (
	"time"

	"github.com/kingrea/crewflow/internal/dispatch"
)

// Status enumerates runner lifecycle phases.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StepResult records one executed step. Results are appended in step order
// and never reordered or removed within a run.
type StepResult struct {
	StepID     string        `json:"step_id"`
	Action     string        `json:"action"`
	Tier       dispatch.Tier `json:"tier,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	Output     any           `json:"output,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// RunResult is what ExecuteWorkflow and Continue report. Workflow-level
// failures are carried here rather than returned as errors.
type RunResult struct {
	Success        bool         `json:"success"`
	Paused         bool         `json:"paused,omitempty"`
	RunID          string       `json:"run_id"`
	WorkflowName   string       `json:"workflow_name"`
	StepsCompleted int          `json:"steps_completed"`
	TotalSteps     int          `json:"total_steps"`
	DurationMS     int64        `json:"duration_ms"`
	Results        []StepResult `json:"results"`
	Error          string       `json:"error,omitempty"`
	Message        string       `json:"message,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// ExecutionStatus is a snapshot of the runner.
type ExecutionStatus struct {
	Status         Status `json:"status"`
	RunID          string `json:"run_id,omitempty"`
	WorkflowName   string `json:"workflow_name,omitempty"`
	StepsCompleted int    `json:"steps_completed"`
	TotalSteps     int    `json:"total_steps"`
	// NextStep is the id of the next unexecuted step, empty when none.
	NextStep string `json:"next_step,omitempty"`
	Error    string `json:"error,omitempty"`
}

func cloneResults(results []StepResult) []StepResult {
	out := make([]StepResult, len(results))
	copy(out, results)
	return out
}
