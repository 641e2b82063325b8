package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kingrea/crewflow/internal/actions"
	"github.com/kingrea/crewflow/internal/dispatch"
	"github.com/kingrea/crewflow/internal/metrics"
	"github.com/kingrea/crewflow/internal/pool"
)

func stepsOf(ids ...string) []Step {
	steps := make([]Step, 0, len(ids))
	for _, id := range ids {
		steps = append(steps, Step{ID: id, Action: "echo"})
	}
	return steps
}

func resultIDs(results []StepResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StepID)
	}
	return ids
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) RunStarted(status ExecutionStatus) {
	o.add("run:" + string(status.Status))
}

func (o *recordingObserver) StepStarted(index int, step Step, _ dispatch.Tier) {
	o.add(fmt.Sprintf("start:%d:%s", index, step.ID))
}

func (o *recordingObserver) StepFinished(result StepResult) {
	o.add("done:" + result.StepID)
}

func (o *recordingObserver) RunFinished(result RunResult) {
	o.add(fmt.Sprintf("finish:%t", result.Success))
}

type pauseAfter struct {
	BaseObserver
	runner *Runner
	stepID string
}

func (p *pauseAfter) StepFinished(result StepResult) {
	if result.StepID == p.stepID {
		p.runner.Pause()
	}
}

type pauseOnStart struct {
	BaseObserver
	runner *Runner
}

func (p *pauseOnStart) RunStarted(ExecutionStatus) {
	p.runner.Pause()
}

func TestExecuteWorkflowRunsEveryStepInOrder(t *testing.T) {
	obs := &recordingObserver{}
	r := NewRunner(WithActions(actions.Builtins()), WithObserver(obs))
	wf := &Workflow{Name: "install", Steps: stepsOf("detect", "install", "verify")}

	res, err := r.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Paused)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "install", res.WorkflowName)
	assert.Equal(t, 3, res.StepsCompleted)
	assert.Equal(t, 3, res.TotalSteps)
	assert.Equal(t, []string{"detect", "install", "verify"}, resultIDs(res.Results))
	assert.Equal(t, "detect", res.Results[0].Output)
	assert.Equal(t, StatusCompleted, r.ExecutionStatus().Status)
	assert.Equal(t, []string{
		"run:running",
		"start:0:detect", "done:detect",
		"start:1:install", "done:install",
		"start:2:verify", "done:verify",
		"finish:true",
	}, obs.events)
}

func TestExecuteWorkflowWithoutActionsUsesPlaceholderOutput(t *testing.T) {
	r := NewRunner()
	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{
		Name:  "bare",
		Steps: []Step{{ID: "one", Action: "provision"}},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "executed provision", res.Results[0].Output)
}

func TestExecuteWorkflowRejectsMalformedWorkflowWithoutStateChange(t *testing.T) {
	r := NewRunner()
	done, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "first", Steps: stepsOf("a")})
	require.NoError(t, err)
	require.True(t, done.Success)

	cases := map[string]*Workflow{
		"nil":      nil,
		"no name":  {Steps: stepsOf("a")},
		"no steps": {Name: "empty"},
	}
	for name, wf := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.ExecuteWorkflow(context.Background(), wf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			status := r.ExecutionStatus()
			assert.Equal(t, StatusCompleted, status.Status)
			assert.Equal(t, "first", status.WorkflowName)
			assert.Len(t, r.Results(), 1)
		})
	}
}

func TestMissingStepIDFailsRunAndKeepsEarlierResults(t *testing.T) {
	r := NewRunner()
	wf := &Workflow{Name: "gap", Steps: []Step{
		{ID: "a", Action: "noop"},
		{ID: "b", Action: "noop"},
		{Action: "noop"},
		{ID: "d", Action: "noop"},
	}}
	res, err := r.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.StepsCompleted)
	assert.Equal(t, 4, res.TotalSteps)
	assert.Contains(t, res.Error, "missing id")
	assert.Equal(t, []string{"a", "b"}, resultIDs(r.Results()))
	assert.Equal(t, StatusError, r.ExecutionStatus().Status)
}

func TestDuplicateStepIDFailsRun(t *testing.T) {
	r := NewRunner()
	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "dup", Steps: stepsOf("a", "b", "a")})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.StepsCompleted)
	assert.Contains(t, res.Error, `duplicate id "a"`)
}

func TestStepFailureStopsRun(t *testing.T) {
	r := NewRunner(WithActions(actions.Builtins()))
	wf := &Workflow{Name: "broken", Steps: []Step{
		{ID: "ok", Action: "noop"},
		{ID: "bad", Action: "fail", With: map[string]any{"message": "disk full"}},
		{ID: "never", Action: "noop"},
	}}
	res, err := r.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.StepsCompleted)
	assert.Contains(t, res.Error, "step bad: disk full")
	assert.Equal(t, "step bad: disk full", r.ExecutionStatus().Error)
}

func TestUnknownActionFailsStep(t *testing.T) {
	r := NewRunner(WithActions(actions.NewRegistry()))
	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: []Step{{ID: "x", Action: "teleport"}}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown action")
}

func TestPanickingStepIsReportedAsFailure(t *testing.T) {
	reg := actions.NewRegistry()
	reg.MustRegister("explode", func(context.Context, actions.Request) (any, error) {
		panic("kaboom")
	})
	r := NewRunner(WithActions(reg))
	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: []Step{{ID: "x", Action: "explode"}}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
}

func TestCancelledContextFailsAtStepBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner()
	res, err := r.ExecuteWorkflow(ctx, &Workflow{Name: "w", Steps: stepsOf("a", "b")})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.StepsCompleted)
	assert.Contains(t, res.Error, context.Canceled.Error())
}

func TestPauseAndResumeAreNoopsOutsideTheirStates(t *testing.T) {
	r := NewRunner()
	assert.False(t, r.Pause(), "idle runner cannot pause")
	assert.False(t, r.Resume(), "idle runner cannot resume")

	_, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: stepsOf("a")})
	require.NoError(t, err)
	assert.False(t, r.Pause(), "completed runner cannot pause")
	assert.Equal(t, StatusCompleted, r.ExecutionStatus().Status)

	_, err = r.Continue(context.Background())
	assert.ErrorIs(t, err, ErrNotResumable)
}

func TestPauseBeforeFirstStep(t *testing.T) {
	obs := &pauseOnStart{}
	r := NewRunner(WithObserver(obs))
	obs.runner = r

	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: stepsOf("a", "b")})
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.StepsCompleted)
	assert.Contains(t, res.Message, "paused after 0 of 2 steps")
	assert.Equal(t, "a", r.ExecutionStatus().NextStep)
}

func TestPauseBetweenStepsThenContinue(t *testing.T) {
	obs := &pauseAfter{stepID: "b"}
	r := NewRunner(WithObserver(obs))
	obs.runner = r
	wf := &Workflow{Name: "w", Steps: stepsOf("a", "b", "c", "d")}

	res, err := r.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)
	require.True(t, res.Paused)
	assert.Equal(t, 2, res.StepsCompleted)
	assert.Equal(t, StatusPaused, r.ExecutionStatus().Status)

	_, err = r.Continue(context.Background())
	assert.ErrorIs(t, err, ErrNotResumable, "continue requires resume first")

	require.True(t, r.Resume())
	assert.False(t, r.Resume(), "second resume is a no-op")
	res, err = r.Continue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.StepsCompleted)
	assert.Equal(t, []string{"a", "b", "c", "d"}, resultIDs(res.Results))
}

func TestPauseDuringInFlightStepLetsItFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	reg := actions.Builtins()
	reg.MustRegister("block", func(context.Context, actions.Request) (any, error) {
		started <- struct{}{}
		<-release
		return "unblocked", nil
	})
	r := NewRunner(WithActions(reg))
	wf := &Workflow{Name: "w", Steps: []Step{
		{ID: "slow", Action: "block"},
		{ID: "next", Action: "noop"},
	}}

	done := make(chan RunResult, 1)
	go func() {
		res, err := r.ExecuteWorkflow(context.Background(), wf)
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	_, err := r.ExecuteWorkflow(context.Background(), wf)
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = r.Continue(context.Background())
	assert.ErrorIs(t, err, ErrNotResumable)

	require.True(t, r.Pause())
	assert.Equal(t, StatusPaused, r.ExecutionStatus().Status)
	close(release)

	var res RunResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after pause")
	}
	assert.True(t, res.Paused)
	assert.Equal(t, 1, res.StepsCompleted)
	assert.Equal(t, "unblocked", res.Results[0].Output)

	require.True(t, r.Resume())
	res, err = r.Continue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"slow", "next"}, resultIDs(res.Results))
}

func TestResetReturnsRunnerToIdle(t *testing.T) {
	r := NewRunner()
	_, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: stepsOf("a", "b")})
	require.NoError(t, err)

	r.Reset()
	status := r.ExecutionStatus()
	assert.Equal(t, StatusIdle, status.Status)
	assert.Empty(t, status.RunID)
	assert.Zero(t, status.StepsCompleted)
	assert.Zero(t, status.TotalSteps)
	assert.Empty(t, r.Results())
	assert.False(t, r.Pause())

	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "again", Steps: stepsOf("z")})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"z"}, resultIDs(r.Results()))
}

func TestResetDuringInFlightStepDetachesOldLoop(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	reg := actions.Builtins()
	reg.MustRegister("block", func(context.Context, actions.Request) (any, error) {
		started <- struct{}{}
		<-release
		return "late", nil
	})
	r := NewRunner(WithActions(reg))

	done := make(chan RunResult, 1)
	go func() {
		res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "old", Steps: []Step{
			{ID: "slow", Action: "block"},
			{ID: "after", Action: "noop"},
		}})
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	r.Reset()
	fresh, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "new", Steps: stepsOf("z")})
	require.NoError(t, err)
	require.True(t, fresh.Success)

	close(release)
	var stale RunResult
	select {
	case stale = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("old loop did not exit after reset")
	}
	assert.False(t, stale.Success)
	assert.Equal(t, "run was reset", stale.Error)

	status := r.ExecutionStatus()
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, "new", status.WorkflowName)
	assert.Equal(t, fresh.RunID, status.RunID)
	assert.Equal(t, []string{"z"}, resultIDs(r.Results()))
}

func TestCancelledContextWaitsForPooledStep(t *testing.T) {
	p, err := pool.New(1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	started := make(chan struct{})
	release := make(chan struct{})
	reg := actions.Builtins()
	reg.MustRegister("stubborn", func(context.Context, actions.Request) (any, error) {
		started <- struct{}{}
		<-release
		return "finished", nil
	})
	r := NewRunner(WithPool(p), WithActions(reg))
	wf := &Workflow{Name: "w", Steps: []Step{
		{ID: "a", Action: "stubborn"},
		{ID: "b", Action: "noop"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan RunResult, 1)
	go func() {
		res, err := r.ExecuteWorkflow(ctx, wf)
		assert.NoError(t, err)
		done <- res
	}()
	<-started
	cancel()

	select {
	case res := <-done:
		t.Fatalf("run returned before its step finished: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
	_, err = r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w2", Steps: stepsOf("z")})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	var res RunResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after its step finished")
	}
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.StepsCompleted)
	assert.Equal(t, "finished", res.Results[0].Output)
	assert.Contains(t, res.Error, context.Canceled.Error())
	assert.Equal(t, 0, p.Stats().Active)
}

func TestNewRunClearsPreviousResults(t *testing.T) {
	r := NewRunner()
	first, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "one", Steps: stepsOf("a", "b")})
	require.NoError(t, err)
	second, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "two", Steps: stepsOf("c")})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, []string{"c"}, resultIDs(r.Results()))
}

func TestResultsReturnsCopy(t *testing.T) {
	r := NewRunner()
	_, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: stepsOf("a")})
	require.NoError(t, err)
	results := r.Results()
	results[0].StepID = "mutated"
	assert.Equal(t, "a", r.Results()[0].StepID)
}

func TestRunnerThroughPoolClassifiesAndRecordsTimings(t *testing.T) {
	p, err := pool.New(2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	rec := metrics.NewRecorder()

	reg := actions.Builtins()
	reg.MustRegister("lint", func(context.Context, actions.Request) (any, error) { return "clean", nil })
	r := NewRunner(
		WithPool(p),
		WithActions(reg),
		WithClassifier(dispatch.Default()),
		WithTimings(rec),
	)
	wf := &Workflow{Name: "tiers", Steps: []Step{
		{ID: "audit", Action: "noop", Description: "security audit of the login flow"},
		{ID: "impl", Action: "noop", Description: "implement retry handling"},
		{ID: "lint", Action: "lint"},
	}}

	res, err := r.ExecuteWorkflow(context.Background(), wf)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	tiers := []dispatch.Tier{res.Results[0].Tier, res.Results[1].Tier, res.Results[2].Tier}
	assert.Equal(t, []dispatch.Tier{dispatch.TierHigh, dispatch.TierMedium, dispatch.TierLow}, tiers)
	assert.Equal(t, 3, p.Stats().Completed)

	noop, ok := rec.Lookup("step.noop")
	require.True(t, ok)
	assert.EqualValues(t, 2, noop.Count)
	high, ok := rec.Lookup("tier.high")
	require.True(t, ok)
	assert.EqualValues(t, 1, high.Count)
}

func TestRunnerFailsStepWhenPoolIsShutDown(t *testing.T) {
	p, err := pool.New(1)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	r := NewRunner(WithPool(p))
	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "w", Steps: stepsOf("a")})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, pool.ErrPoolShutdown.Error())
}

func TestRunnerPersistsReports(t *testing.T) {
	repo := NewRepository(filepath.Join(t.TempDir(), "state", "last-run.json"))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewRunner(WithReportStore(repo), WithClock(func() time.Time { return fixed }))

	res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "persist", Steps: stepsOf("a", "b")})
	require.NoError(t, err)

	stored, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, res.RunID, stored.RunID)
	assert.Equal(t, "persist", stored.WorkflowName)
	assert.True(t, stored.Success)
	assert.Equal(t, []string{"a", "b"}, resultIDs(stored.Results))
	assert.True(t, stored.Timestamp.Equal(fixed))
}

func TestPauseContinueAlwaysYieldsFullOrderedResults(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "steps")
		pauseAt := rapid.IntRange(0, n-1).Draw(t, "pauseAt")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("s%02d", i)
		}

		obs := &pauseAfter{stepID: ids[pauseAt]}
		r := NewRunner(WithObserver(obs))
		obs.runner = r

		res, err := r.ExecuteWorkflow(context.Background(), &Workflow{Name: "prop", Steps: stepsOf(ids...)})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if pauseAt == n-1 {
			if !res.Success {
				t.Fatalf("pause after last step should still complete, got %+v", res)
			}
		} else {
			if !res.Paused || res.StepsCompleted != pauseAt+1 {
				t.Fatalf("expected pause after %d steps, got %+v", pauseAt+1, res)
			}
			if !r.Resume() {
				t.Fatalf("resume failed")
			}
			res, err = r.Continue(context.Background())
			if err != nil {
				t.Fatalf("continue: %v", err)
			}
		}
		got := resultIDs(r.Results())
		if len(got) != n {
			t.Fatalf("expected %d results, got %d", n, len(got))
		}
		for i, id := range got {
			if id != ids[i] {
				t.Fatalf("result %d = %s, want %s", i, id, ids[i])
			}
		}
	})
}
