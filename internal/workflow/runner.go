package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/crewflow/internal/actions"
	"github.com/kingrea/crewflow/internal/dispatch"
	"github.com/kingrea/crewflow/internal/pool"
	"github.com/kingrea/crewflow/internal/telemetry"
)

// ActionResolver maps an action label to a handler. *actions.Registry
// satisfies it.
type ActionResolver interface {
	Resolve(action string) (actions.Handler, error)
}

// Runner executes workflows one step at a time. A run can be paused between
// steps and continued later from the next unexecuted step.
type Runner struct {
	mu sync.Mutex

	status         Status
	runID          string
	workflow       Workflow
	results        []StepResult
	next           int
	pauseRequested bool
	stepping       bool
	generation     uint64
	startedAt      time.Time
	lastErr        string

	pool       *pool.Pool
	classifier *dispatch.Classifier
	actions    ActionResolver
	reports    ReportStore
	sink       telemetry.Sink
	timings    telemetry.Timings
	observers  []Observer
	clock      func() time.Time
	newID      func() string
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithPool routes step execution through a worker pool.
func WithPool(p *pool.Pool) RunnerOption {
	return func(r *Runner) {
		r.pool = p
	}
}

// WithClassifier tags every step result with a recommended tier.
func WithClassifier(c *dispatch.Classifier) RunnerOption {
	return func(r *Runner) {
		r.classifier = c
	}
}

// WithActions sets the action resolver. Without one, steps succeed with a
// placeholder output.
func WithActions(resolver ActionResolver) RunnerOption {
	return func(r *Runner) {
		r.actions = resolver
	}
}

// WithReportStore persists every terminal or paused run result.
func WithReportStore(store ReportStore) RunnerOption {
	return func(r *Runner) {
		r.reports = store
	}
}

// WithSink sets the structured log sink.
func WithSink(sink telemetry.Sink) RunnerOption {
	return func(r *Runner) {
		r.sink = sink
	}
}

// WithTimings records per-step and per-tier durations.
func WithTimings(t telemetry.Timings) RunnerOption {
	return func(r *Runner) {
		r.timings = t
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithClock overrides the runner clock (useful for tests).
func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRunner constructs an idle runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		status: StatusIdle,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.sink = telemetry.SinkOrNop(r.sink)
	r.timings = telemetry.TimingsOrNop(r.timings)
	return r
}

// ExecuteWorkflow starts a new run of wf and steps until it completes, fails
// or is paused. A malformed workflow is rejected with a ValidationError before
// any state changes; failures inside the run are reported in the RunResult.
func (r *Runner) ExecuteWorkflow(ctx context.Context, wf *Workflow) (RunResult, error) {
	if err := wf.Validate(); err != nil {
		return RunResult{}, err
	}
	r.mu.Lock()
	if r.stepping {
		r.mu.Unlock()
		return RunResult{}, ErrRunInProgress
	}
	r.generation++
	r.status = StatusRunning
	r.runID = r.newID()
	r.workflow = wf.Clone()
	r.results = nil
	r.next = 0
	r.pauseRequested = false
	r.stepping = true
	r.startedAt = r.clock()
	r.lastErr = ""
	gen := r.generation
	snapshot := r.statusLocked()
	r.mu.Unlock()

	r.sink.Log("workflow started", "workflow", snapshot.WorkflowName, "run", snapshot.RunID, "steps", snapshot.TotalSteps)
	for _, o := range r.observers {
		o.RunStarted(snapshot)
	}
	return r.loop(ctx, gen), nil
}

// Continue steps a resumed run from its next unexecuted step. It returns
// ErrNotResumable unless the run was paused and then resumed.
func (r *Runner) Continue(ctx context.Context) (RunResult, error) {
	r.mu.Lock()
	if r.stepping || r.status != StatusRunning || r.next >= len(r.workflow.Steps) {
		r.mu.Unlock()
		return RunResult{}, ErrNotResumable
	}
	r.stepping = true
	gen := r.generation
	name, next := r.workflow.Name, r.next
	r.mu.Unlock()

	r.sink.Log("workflow continued", "workflow", name, "from_step", next)
	return r.loop(ctx, gen), nil
}

// Pause requests a stop before the next step. The in-flight step, if any,
// runs to completion. Pause reports false unless a run is in progress.
func (r *Runner) Pause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return false
	}
	r.pauseRequested = true
	r.status = StatusPaused
	return true
}

// Resume clears a pause. It does not step the run itself; call Continue for
// that unless the original loop is still finishing its in-flight step.
func (r *Runner) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPaused {
		return false
	}
	r.pauseRequested = false
	r.status = StatusRunning
	return true
}

// Results returns a copy of the step results recorded so far.
func (r *Runner) Results() []StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneResults(r.results)
}

// Reset discards all run state and returns the runner to idle. A loop still
// stepping the discarded run stops at its next step boundary.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.status = StatusIdle
	r.runID = ""
	r.workflow = Workflow{}
	r.results = nil
	r.next = 0
	r.pauseRequested = false
	r.stepping = false
	r.lastErr = ""
}

// ExecutionStatus returns a snapshot of the runner state.
func (r *Runner) ExecutionStatus() ExecutionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Runner) statusLocked() ExecutionStatus {
	status := ExecutionStatus{
		Status:         r.status,
		RunID:          r.runID,
		WorkflowName:   r.workflow.Name,
		StepsCompleted: len(r.results),
		TotalSteps:     len(r.workflow.Steps),
		Error:          r.lastErr,
	}
	if r.next < len(r.workflow.Steps) && r.status != StatusIdle {
		status.NextStep = r.workflow.Steps[r.next].ID
	}
	return status
}

func (r *Runner) loop(ctx context.Context, gen uint64) RunResult {
	for {
		r.mu.Lock()
		if r.generation != gen {
			r.mu.Unlock()
			return RunResult{Success: false, Error: "run was reset", Timestamp: r.clock()}
		}
		if r.next >= len(r.workflow.Steps) {
			r.status = StatusCompleted
			r.stepping = false
			r.pauseRequested = false
			result := r.resultLocked()
			result.Success = true
			result.Message = fmt.Sprintf("completed %d steps", result.StepsCompleted)
			r.mu.Unlock()
			r.finish(result)
			return result
		}
		if r.pauseRequested {
			r.stepping = false
			result := r.resultLocked()
			result.Paused = true
			result.Message = fmt.Sprintf("paused after %d of %d steps", result.StepsCompleted, result.TotalSteps)
			r.mu.Unlock()
			r.finish(result)
			return result
		}
		if err := ctx.Err(); err != nil {
			result := r.failLocked(fmt.Errorf("workflow: %w", err))
			r.mu.Unlock()
			r.finish(result)
			return result
		}
		index := r.next
		step := r.workflow.Steps[index].Clone()
		if err := validateStep(index, step, r.results); err != nil {
			result := r.failLocked(err)
			r.mu.Unlock()
			r.finish(result)
			return result
		}
		workflowName := r.workflow.Name
		r.mu.Unlock()

		tier := r.classify(workflowName, step)
		for _, o := range r.observers {
			o.StepStarted(index, step, tier)
		}
		start := r.clock()
		output, err := r.execute(ctx, step)
		elapsed := r.clock().Sub(start)

		r.mu.Lock()
		if r.generation != gen {
			r.mu.Unlock()
			return RunResult{Success: false, Error: "run was reset", Timestamp: r.clock()}
		}
		if err != nil {
			result := r.failLocked(fmt.Errorf("step %s: %w", step.ID, err))
			r.mu.Unlock()
			r.finish(result)
			return result
		}
		stepResult := StepResult{
			StepID:     step.ID,
			Action:     step.Action,
			Tier:       tier,
			DurationMS: elapsed.Milliseconds(),
			Output:     output,
			Timestamp:  r.clock(),
		}
		r.results = append(r.results, stepResult)
		r.next++
		r.mu.Unlock()

		r.timings.Observe("step."+step.Action, elapsed)
		if tier != "" {
			r.timings.Observe("tier."+string(tier), elapsed)
		}
		for _, o := range r.observers {
			o.StepFinished(stepResult)
		}
	}
}

func (r *Runner) resultLocked() RunResult {
	now := r.clock()
	return RunResult{
		RunID:          r.runID,
		WorkflowName:   r.workflow.Name,
		StepsCompleted: len(r.results),
		TotalSteps:     len(r.workflow.Steps),
		DurationMS:     now.Sub(r.startedAt).Milliseconds(),
		Results:        cloneResults(r.results),
		Timestamp:      now,
	}
}

func (r *Runner) failLocked(err error) RunResult {
	r.status = StatusError
	r.stepping = false
	r.pauseRequested = false
	r.lastErr = err.Error()
	result := r.resultLocked()
	result.Error = r.lastErr
	return result
}

func (r *Runner) finish(result RunResult) {
	switch {
	case result.Success:
		r.sink.Log("workflow completed", "workflow", result.WorkflowName, "run", result.RunID, "steps", result.StepsCompleted, "duration_ms", result.DurationMS)
	case result.Paused:
		r.sink.Log("workflow paused", "workflow", result.WorkflowName, "run", result.RunID, "steps", result.StepsCompleted)
	default:
		r.sink.Log("workflow failed", "workflow", result.WorkflowName, "run", result.RunID, "steps", result.StepsCompleted, "error", result.Error)
	}
	if r.reports != nil {
		if err := r.reports.Save(result); err != nil {
			r.sink.Log("save run report", "run", result.RunID, "error", err.Error())
		}
	}
	for _, o := range r.observers {
		o.RunFinished(result)
	}
}

func (r *Runner) classify(workflowName string, step Step) dispatch.Tier {
	if r.classifier == nil {
		return ""
	}
	text := step.Description
	if text == "" {
		text = step.Action
	}
	decision, err := r.classifier.Explain(text)
	if err != nil {
		return ""
	}
	r.sink.Log("step classified", "workflow", workflowName, "step", step.ID, "tier", string(decision.Tier), "keyword", decision.Keyword, "defaulted", decision.Defaulted)
	return decision.Tier
}

func (r *Runner) execute(ctx context.Context, step Step) (any, error) {
	var handler actions.Handler = placeholderAction
	if r.actions != nil {
		resolved, err := r.actions.Resolve(step.Action)
		if err != nil {
			return nil, err
		}
		handler = resolved
	}
	req := actions.Request{StepID: step.ID, Action: step.Action, With: step.With}
	task := pool.Func(func(ctx context.Context) (any, error) {
		return handler(ctx, req)
	})
	if r.pool != nil {
		// The handler sees ctx; the runner still waits for the step to finish.
		f := r.pool.Submit(ctx, task)
		<-f.Done()
		return f.Await(context.Background())
	}
	return pool.RunSafely(ctx, task)
}

func placeholderAction(_ context.Context, req actions.Request) (any, error) {
	return fmt.Sprintf("executed %s", req.Action), nil
}
