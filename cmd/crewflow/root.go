package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kingrea/crewflow/internal/config"
	"github.com/kingrea/crewflow/internal/logging"
)

const version = "0.1.0"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	keyCellStyle = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("#A0AEC0"))
)

type rootOptions struct {
	projectDir string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "crewflow",
		Short:         "Route tasks to model tiers and run step workflows",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.projectDir != "" {
				return nil
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			opts.projectDir = cwd
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.projectDir, "dir", "C", "", "project directory (default: current directory)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "mirror log output to stderr")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newInitCmd(opts),
		newClassifyCmd(opts),
		newSavingsCmd(opts),
		newRunCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// project bundles the per-invocation configuration and logger.
type project struct {
	cfg    *config.Config
	logger *logging.Logger
}

func openProject(opts *rootOptions) (*project, error) {
	cfg, err := config.NewConfig(opts.projectDir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(opts.projectDir, logging.Options{
		Level:      cfg.Project.Logging.Level,
		Format:     cfg.Project.Logging.Format,
		MaxSizeMB:  cfg.Project.Logging.MaxSizeMB,
		MaxBackups: cfg.Project.Logging.MaxBackups,
		Console:    opts.verbose,
	})
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, logger: logger}, nil
}

func (p *project) Close() {
	_ = p.logger.Close()
}

func kv(key string, value any) string {
	return keyCellStyle.Render(key) + fmt.Sprint(value)
}
