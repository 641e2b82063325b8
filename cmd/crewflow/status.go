package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/crewflow/internal/logbook"
	"github.com/kingrea/crewflow/internal/workflow"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run report and recent journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(opts)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			report, err := workflow.NewRepository(p.cfg.LastRunPath()).Load()
			switch {
			case errors.Is(err, workflow.ErrReportNotFound):
				fmt.Fprintln(out, mutedStyle.Render("no runs recorded yet"))
			case err != nil:
				return fmt.Errorf("status: %w", err)
			default:
				fmt.Fprintln(out, titleStyle.Render(report.WorkflowName))
				printRunSummary(out, report)
				for _, r := range report.Results {
					tier := ""
					if r.Tier != "" {
						tier = mutedStyle.Render(" [" + string(r.Tier) + "]")
					}
					fmt.Fprintf(out, "  %s %s%s %s\n", okStyle.Render("✓"), r.StepID, tier, mutedStyle.Render(fmt.Sprintf("%dms", r.DurationMS)))
				}
			}

			book, err := logbook.New(p.cfg.RunJournalPath())
			if err != nil {
				return err
			}
			tail, total := book.Tail(lines)
			if total == 0 {
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("journal (last %d of %d)", len(tail), total)))
			for _, line := range tail {
				fmt.Fprintln(out, "  "+line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "journal entries to show")
	return cmd
}
