package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/crewflow/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .crewflow directory in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitProjectDir(opts.projectDir); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			p, err := openProject(opts)
			if err != nil {
				return err
			}
			defer p.Close()
			if workers > 0 {
				if err := p.cfg.SetMaxWorkers(workers); err != nil {
					return err
				}
			}
			p.logger.Log("project initialized", "dir", p.cfg.StateRoot, "max_workers", p.cfg.MaxWorkers())
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, okStyle.Render("Initialized ")+p.cfg.StateRoot)
			fmt.Fprintln(out, kv("config", p.cfg.ProjectConfigPath()))
			fmt.Fprintln(out, kv("workflows", p.cfg.WorkflowsDir()))
			fmt.Fprintln(out, kv("plugins", p.cfg.PluginsDir()))
			fmt.Fprintln(out, kv("max workers", p.cfg.MaxWorkers()))
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "persist the default pool size")
	return cmd
}
