// internal/tui/app.go
//
// Interactive view of a single workflow run. It follows The Elm Architecture:
//
// 1. Model: the run state mirrored from runner events
// 2. Update: folds events and key presses into the model
// 3. View: renders the step list and run status
//
// The runner steps on a command goroutine; its observer callbacks arrive here
// as messages through Events.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/crewflow/internal/dispatch"
	"github.com/kingrea/crewflow/internal/workflow"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStylePaused  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

var tierStyles = map[dispatch.Tier]lipgloss.Style{
	dispatch.TierLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
	dispatch.TierMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")),
	dispatch.TierHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
}

type stepState int

const (
	stepPending stepState = iota
	stepRunning
	stepDone
	stepFailed
)

type stepRow struct {
	id         string
	action     string
	tier       dispatch.Tier
	state      stepState
	durationMS int64
}

type runReturnedMsg struct {
	result workflow.RunResult
	err    error
}

// RunView is the bubbletea model for one workflow run.
type RunView struct {
	ctx      context.Context
	runner   *workflow.Runner
	workflow *workflow.Workflow
	events   *Events
	spinner  spinner.Model

	rows      []stepRow
	runID     string
	status    workflow.Status
	statusMsg string
	result    *workflow.RunResult
	err       error
	quitting  bool
}

// NewRunView prepares a view that will execute wf on runner. events must be
// registered on runner as an observer.
func NewRunView(ctx context.Context, runner *workflow.Runner, wf *workflow.Workflow, events *Events) *RunView {
	rows := make([]stepRow, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		rows = append(rows, stepRow{id: step.ID, action: step.Action})
	}
	return &RunView{
		ctx:      ctx,
		runner:   runner,
		workflow: wf,
		events:   events,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(labelStyleRunning)),
		rows:     rows,
		status:   workflow.StatusIdle,
	}
}

// Run executes the workflow inside a full-screen program and returns the last
// run result the view observed.
func Run(ctx context.Context, runner *workflow.Runner, wf *workflow.Workflow, events *Events) (workflow.RunResult, error) {
	view := NewRunView(ctx, runner, wf, events)
	if _, err := tea.NewProgram(view, tea.WithContext(ctx)).Run(); err != nil {
		return workflow.RunResult{}, fmt.Errorf("tui: %w", err)
	}
	if view.err != nil {
		return workflow.RunResult{}, view.err
	}
	if view.result == nil {
		return workflow.RunResult{}, errors.New("tui: run did not report a result")
	}
	return *view.result, nil
}

// Result returns the last run result, if any.
func (m *RunView) Result() (workflow.RunResult, bool) {
	if m.result == nil {
		return workflow.RunResult{}, false
	}
	return *m.result, true
}

func (m *RunView) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.events.wait(), m.execute())
}

func (m *RunView) execute() tea.Cmd {
	return func() tea.Msg {
		result, err := m.runner.ExecuteWorkflow(m.ctx, m.workflow)
		return runReturnedMsg{result: result, err: err}
	}
}

func (m *RunView) resume() tea.Cmd {
	return func() tea.Msg {
		result, err := m.runner.Continue(m.ctx)
		if errors.Is(err, workflow.ErrNotResumable) {
			// The original loop picked the run back up before it stopped.
			return nil
		}
		return runReturnedMsg{result: result, err: err}
	}
}

func (m *RunView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKeyMsg(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case runStartedMsg:
		m.runID = msg.status.RunID
		m.status = msg.status.Status
		for i := range m.rows {
			m.rows[i].state = stepPending
		}
		return m, m.events.wait()
	case stepStartedMsg:
		if msg.index >= 0 && msg.index < len(m.rows) {
			m.rows[msg.index].state = stepRunning
			m.rows[msg.index].tier = msg.tier
		}
		return m, m.events.wait()
	case stepFinishedMsg:
		for i := range m.rows {
			if m.rows[i].id == msg.result.StepID && m.rows[i].state == stepRunning {
				m.rows[i].state = stepDone
				m.rows[i].durationMS = msg.result.DurationMS
				break
			}
		}
		return m, m.events.wait()
	case runReturnedMsg:
		return m, m.handleRunReturned(msg)
	}
	return m, nil
}

func (m *RunView) handleRunReturned(msg runReturnedMsg) tea.Cmd {
	if msg.err != nil {
		m.err = msg.err
		m.statusMsg = fmt.Sprintf("Workflow error: %v", msg.err)
		return nil
	}
	result := msg.result
	m.result = &result
	m.status = m.runner.ExecutionStatus().Status
	switch {
	case result.Success:
		m.statusMsg = result.Message
	case result.Paused:
		m.statusMsg = result.Message + " (r to resume)"
	default:
		m.statusMsg = "Failed: " + result.Error
		for i := range m.rows {
			if m.rows[i].state == stepRunning {
				m.rows[i].state = stepFailed
			}
		}
	}
	if m.quitting {
		return tea.Quit
	}
	return nil
}

func (m *RunView) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "p":
		if m.runner.Pause() {
			m.status = workflow.StatusPaused
			m.statusMsg = "Pausing after the current step…"
		} else {
			m.statusMsg = "Nothing to pause"
		}
	case "r":
		if m.runner.Resume() {
			m.status = workflow.StatusRunning
			m.statusMsg = "Resumed"
			return m.resume()
		}
		m.statusMsg = "Nothing to resume"
	case "q", "ctrl+c", "esc":
		m.events.Close()
		if m.runner.ExecutionStatus().Status == workflow.StatusRunning && m.runner.Pause() {
			m.quitting = true
			m.statusMsg = "Pausing before exit…"
			return nil
		}
		return tea.Quit
	}
	return nil
}

func (m *RunView) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("crewflow · " + m.workflow.Name))
	b.WriteString("\n")
	statusLine := fmt.Sprintf("Status: %s", statusLabel(m.status))
	if m.runID != "" {
		statusLine += detailTextStyle.Render(" · run " + m.runID)
	}
	b.WriteString(statusLine + "\n\n")
	for i, row := range m.rows {
		b.WriteString(m.renderRow(i, row))
		b.WriteString("\n")
	}
	if m.statusMsg != "" {
		b.WriteString("\n" + m.statusMsg + "\n")
	}
	b.WriteString("\n" + detailTextStyle.Render("p=pause  r=resume  q=quit") + "\n")
	return b.String()
}

func (m *RunView) renderRow(idx int, row stepRow) string {
	var indicator string
	switch row.state {
	case stepRunning:
		indicator = m.spinner.View()
	case stepDone:
		indicator = labelStyleDone.Render("✓")
	case stepFailed:
		indicator = labelStyleFailed.Render("✗")
	default:
		indicator = labelStyleDefault.Render("·")
	}
	name := row.id
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("<step %d>", idx+1)
	}
	line := fmt.Sprintf("%s %s %s", indicator, name, detailTextStyle.Render(row.action))
	if row.tier != "" {
		style, ok := tierStyles[row.tier]
		if !ok {
			style = labelStyleDefault
		}
		line += " " + style.Render("["+string(row.tier)+"]")
	}
	if row.state == stepDone {
		line += detailTextStyle.Render(fmt.Sprintf(" %dms", row.durationMS))
	}
	return line
}

func statusLabel(status workflow.Status) string {
	text := string(status)
	if text == "" {
		text = string(workflow.StatusIdle)
	}
	switch status {
	case workflow.StatusCompleted:
		return labelStyleDone.Render(text)
	case workflow.StatusError:
		return labelStyleFailed.Render(text)
	case workflow.StatusRunning:
		return labelStyleRunning.Render(text)
	case workflow.StatusPaused:
		return labelStylePaused.Render(text)
	default:
		return labelStyleDefault.Render(text)
	}
}
