package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/crewflow/internal/dispatch"
)

func projectClassifier(opts *rootOptions) (*dispatch.Classifier, error) {
	p, err := openProject(opts)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return dispatch.NewClassifier(p.cfg.ClassifierRules())
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <description...>",
		Short: "Recommend a model tier for a task description",
		Example: `  crewflow classify "fix typo in README"
  crewflow classify --json security audit of the auth flow`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := projectClassifier(opts)
			if err != nil {
				return err
			}
			description := strings.Join(args, " ")
			decision, err := classifier.Explain(description)
			if err != nil {
				return err
			}
			cost, err := dispatch.CostOf(decision.Tier)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"tier":      decision.Tier,
					"model":     decision.Tier.Model(),
					"cost":      cost,
					"keyword":   decision.Keyword,
					"defaulted": decision.Defaulted,
				})
			}
			fmt.Fprintln(out, kv("tier", titleStyle.Render(string(decision.Tier))))
			fmt.Fprintln(out, kv("model", decision.Tier.Model()))
			fmt.Fprintln(out, kv("cost", cost))
			if decision.Defaulted {
				fmt.Fprintln(out, kv("reason", mutedStyle.Render("no keyword matched")))
			} else {
				fmt.Fprintln(out, kv("keyword", decision.Keyword))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return cmd
}

func newSavingsCmd(opts *rootOptions) *cobra.Command {
	var baseline string
	cmd := &cobra.Command{
		Use:   "savings <description...>",
		Short: "Compare the recommended tier against a baseline tier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := dispatch.ParseTier(baseline)
			if err != nil {
				return err
			}
			classifier, err := projectClassifier(opts)
			if err != nil {
				return err
			}
			savings, err := classifier.EstimateSavings(strings.Join(args, " "), base)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, kv("recommended", fmt.Sprintf("%s (%g)", savings.RecommendedTier, savings.RecommendedCost)))
			fmt.Fprintln(out, kv("baseline", fmt.Sprintf("%s (%g)", base, savings.BaselineCost)))
			percent := fmt.Sprintf("%d%%", savings.SavingsPercent)
			if savings.ShouldSwitch {
				fmt.Fprintln(out, kv("savings", okStyle.Render(percent)))
				fmt.Fprintln(out, okStyle.Render("switch to "+string(savings.RecommendedTier)))
			} else {
				fmt.Fprintln(out, kv("savings", warnStyle.Render(percent)))
				fmt.Fprintln(out, mutedStyle.Render("keep "+string(base)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&baseline, "baseline", "b", string(dispatch.TierHigh), "tier to compare against (low, medium, high or a model alias)")
	return cmd
}
