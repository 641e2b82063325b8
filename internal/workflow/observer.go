package workflow

import "github.com/kingrea/crewflow/internal/dispatch"

// Observer receives run lifecycle events. Callbacks run on the stepping
// goroutine without the runner lock held, so they may call Pause, Resume or
// ExecutionStatus.
type Observer interface {
	RunStarted(status ExecutionStatus)
	StepStarted(index int, step Step, tier dispatch.Tier)
	StepFinished(result StepResult)
	RunFinished(result RunResult)
}

// BaseObserver implements Observer with no-ops; embed it to override a subset.
type BaseObserver struct{}

func (BaseObserver) RunStarted(ExecutionStatus) {}

func (BaseObserver) StepStarted(int, Step, dispatch.Tier) {}

func (BaseObserver) StepFinished(StepResult) {}

func (BaseObserver) RunFinished(RunResult) {}
