package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/crewflow/internal/actions"
	"github.com/kingrea/crewflow/internal/dispatch"
	"github.com/kingrea/crewflow/internal/logbook"
	"github.com/kingrea/crewflow/internal/metrics"
	"github.com/kingrea/crewflow/internal/pool"
	"github.com/kingrea/crewflow/internal/tui"
	"github.com/kingrea/crewflow/internal/workflow"
)

const shutdownGrace = 10 * time.Second

type runOptions struct {
	workers int
	useTUI  bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow definition",
		Long: `Execute a workflow definition step by step.

The argument is a path to a YAML file, or a name resolved inside the
project's workflows directory (.yaml/.yml may be omitted).`,
		Example: `  crewflow run install-persona
  crewflow run ./deploy.yaml --workers 2 --tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorkflow(ctx, cmd.OutOrStdout(), opts, ro, args[0])
		},
	}
	cmd.Flags().IntVarP(&ro.workers, "workers", "w", 0, "pool size (overrides workflow and project settings)")
	cmd.Flags().BoolVar(&ro.useTUI, "tui", false, "show an interactive view with pause/resume keys")
	return cmd
}

func loadWorkflow(workflowsDir, ref string) (workflow.Workflow, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return workflow.LoadDefinitionFile(ref)
	}
	return workflow.LoadDefinitionRelative(workflowsDir, ref)
}

func runWorkflow(ctx context.Context, out io.Writer, opts *rootOptions, ro *runOptions, ref string) error {
	p, err := openProject(opts)
	if err != nil {
		return err
	}
	defer p.Close()

	wf, err := loadWorkflow(p.cfg.WorkflowsDir(), ref)
	if err != nil {
		return err
	}

	workers := p.cfg.MaxWorkers()
	if wf.Runtime.MaxWorkers > 0 {
		workers = wf.Runtime.MaxWorkers
	}
	if ro.workers > 0 {
		workers = ro.workers
	}

	recorder := metrics.NewRecorder()
	workerPool, err := pool.New(workers, pool.WithSink(p.logger), pool.WithTimings(recorder))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := workerPool.Shutdown(shutdownCtx); err != nil {
			p.logger.Log("pool shutdown", "error", err.Error())
		}
	}()

	registry := actions.Builtins()
	plugins, err := actions.LoadPluginDir(p.cfg.PluginsDir())
	if err != nil {
		return err
	}
	if err := registry.Install(plugins); err != nil {
		return err
	}
	for _, plugin := range plugins {
		p.logger.Log("plugin action loaded", "action", plugin.Name, "path", plugin.Path)
	}

	classifier, err := dispatch.NewClassifier(p.cfg.ClassifierRules())
	if err != nil {
		return err
	}
	book, err := logbook.New(p.cfg.RunJournalPath())
	if err != nil {
		return err
	}

	runnerOpts := []workflow.RunnerOption{
		workflow.WithPool(workerPool),
		workflow.WithClassifier(classifier),
		workflow.WithActions(registry),
		workflow.WithReportStore(workflow.NewRepository(p.cfg.LastRunPath())),
		workflow.WithSink(p.logger),
		workflow.WithTimings(recorder),
		workflow.WithObserver(logbook.NewJournal(book)),
	}

	var result workflow.RunResult
	if ro.useTUI {
		events := tui.NewEvents()
		runner := workflow.NewRunner(append(runnerOpts, workflow.WithObserver(events))...)
		result, err = tui.Run(ctx, runner, &wf, events)
	} else {
		runner := workflow.NewRunner(append(runnerOpts, workflow.WithObserver(&progressPrinter{out: out}))...)
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("▶ %s", wf.Name))+mutedStyle.Render(fmt.Sprintf(" (%d steps, %d workers)", len(wf.Steps), workers)))
		result, err = runner.ExecuteWorkflow(ctx, &wf)
	}
	if err != nil {
		return err
	}

	printRunSummary(out, result)
	printTimings(out, recorder.Snapshot())
	switch {
	case result.Success, result.Paused:
		return nil
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("workflow %s interrupted", result.WorkflowName)
	default:
		return fmt.Errorf("workflow %s failed: %s", result.WorkflowName, result.Error)
	}
}

type progressPrinter struct {
	workflow.BaseObserver
	out io.Writer
}

func (pp *progressPrinter) StepStarted(index int, step workflow.Step, tier dispatch.Tier) {
	line := fmt.Sprintf("  %d. %s %s", index+1, step.ID, mutedStyle.Render(step.Action))
	if tier != "" {
		line += mutedStyle.Render(fmt.Sprintf(" [%s/%s]", tier, tier.Model()))
	}
	fmt.Fprintln(pp.out, line)
}

func (pp *progressPrinter) StepFinished(result workflow.StepResult) {
	fmt.Fprintln(pp.out, okStyle.Render("     ✓ ")+mutedStyle.Render(fmt.Sprintf("%dms", result.DurationMS)))
}

func printRunSummary(out io.Writer, result workflow.RunResult) {
	fmt.Fprintln(out)
	switch {
	case result.Success:
		fmt.Fprintln(out, okStyle.Render("completed ")+result.Message)
	case result.Paused:
		fmt.Fprintln(out, warnStyle.Render("paused ")+result.Message)
	default:
		fmt.Fprintln(out, errorStyle.Render("failed ")+result.Error)
	}
	fmt.Fprintln(out, kv("run", result.RunID))
	fmt.Fprintln(out, kv("steps", fmt.Sprintf("%d/%d", result.StepsCompleted, result.TotalSteps)))
	fmt.Fprintln(out, kv("duration", fmt.Sprintf("%dms", result.DurationMS)))
}

func printTimings(out io.Writer, summaries []metrics.Summary) {
	if len(summaries) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("timings"))
	for _, s := range summaries {
		fmt.Fprintf(out, "  %-24s n=%-4d mean=%-10s p95=%-10s max=%s\n", s.Series, s.Count, s.Mean, s.P95, s.Max)
	}
}
