package logbook

import (
	"github.com/kingrea/crewflow/internal/dispatch"
	"github.com/kingrea/crewflow/internal/workflow"
)

// Journal records runner lifecycle events in a Logbook.
type Journal struct {
	workflow.BaseObserver
	book *Logbook
}

// NewJournal returns an observer that writes to book.
func NewJournal(book *Logbook) *Journal {
	return &Journal{book: book}
}

func (j *Journal) RunStarted(status workflow.ExecutionStatus) {
	j.book.Info("run %s started workflow=%s steps=%d", status.RunID, status.WorkflowName, status.TotalSteps)
}

func (j *Journal) StepStarted(index int, step workflow.Step, tier dispatch.Tier) {
	if tier == "" {
		j.book.Info("step %d %s action=%s started", index+1, step.ID, step.Action)
		return
	}
	j.book.Info("step %d %s action=%s tier=%s model=%s started", index+1, step.ID, step.Action, tier, tier.Model())
}

func (j *Journal) StepFinished(result workflow.StepResult) {
	j.book.Info("step %s finished in %dms", result.StepID, result.DurationMS)
}

func (j *Journal) RunFinished(result workflow.RunResult) {
	switch {
	case result.Success:
		j.book.Info("run %s completed %d/%d steps in %dms", result.RunID, result.StepsCompleted, result.TotalSteps, result.DurationMS)
	case result.Paused:
		j.book.Warn("run %s paused after %d/%d steps", result.RunID, result.StepsCompleted, result.TotalSteps)
	default:
		j.book.Error("run %s failed after %d/%d steps: %s", result.RunID, result.StepsCompleted, result.TotalSteps, result.Error)
	}
}
