package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/crewflow/internal/dispatch"
	"github.com/kingrea/crewflow/internal/workflow"
)

const eventBuffer = 128

type runStartedMsg struct {
	status workflow.ExecutionStatus
}

type stepStartedMsg struct {
	index int
	step  workflow.Step
	tier  dispatch.Tier
}

type stepFinishedMsg struct {
	result workflow.StepResult
}

// Events forwards runner lifecycle callbacks into the bubbletea loop.
type Events struct {
	workflow.BaseObserver
	ch        chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
}

// NewEvents returns an observer to register with workflow.WithObserver.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, eventBuffer), done: make(chan struct{})}
}

func (e *Events) RunStarted(status workflow.ExecutionStatus) {
	e.send(runStartedMsg{status: status})
}

func (e *Events) StepStarted(index int, step workflow.Step, tier dispatch.Tier) {
	e.send(stepStartedMsg{index: index, step: step, tier: tier})
}

func (e *Events) StepFinished(result workflow.StepResult) {
	e.send(stepFinishedMsg{result: result})
}

// Close stops forwarding. Later callbacks are dropped.
func (e *Events) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	case <-e.done:
	}
}

// wait returns a command that delivers the next event.
func (e *Events) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-e.ch:
			return msg
		case <-e.done:
			return nil
		}
	}
}
