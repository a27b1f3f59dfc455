package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/history"
	"github.com/loadout-sh/loadout/pkg/planner"
	"github.com/loadout-sh/loadout/pkg/presenter"
	"github.com/loadout-sh/loadout/pkg/session"
	"github.com/loadout-sh/loadout/pkg/telemetry"
)

type PlanConfig struct {
	Budget int
	Preset string
	Mode   string
	Output string
}

func NewPlanConfig() *PlanConfig {
	return &PlanConfig{
		Output: "text",
	}
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Resolve which docs fit the token budget",
	Long: `Detect the project's framework, resolve which reference docs fit the
token budget, and save the resulting plan to .loadout/plan.json.

The budget comes from --budget, the budget_preset config key, or the
"smart" preset. Re-running plan replaces the saved plan.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getPlanConfigFromFlags(cmd)
		runPlanCommand(ctx, config)
	},
}

func init() {
	defaults := NewPlanConfig()
	planCmd.Flags().Int("budget", defaults.Budget, "Token budget (0 uses the configured preset)")
	planCmd.Flags().String("preset", defaults.Preset, "Budget preset (core, smart, full)")
	planCmd.Flags().String("mode", defaults.Mode, "Budget pressure mode (relaxed, strict)")
	planCmd.Flags().StringP("output", "o", defaults.Output, "Output format (text, json, yaml)")
	rootCmd.AddCommand(withTracing(planCmd))
}

func getPlanConfigFromFlags(cmd *cobra.Command) *PlanConfig {
	config := NewPlanConfig()

	if budget, err := cmd.Flags().GetInt("budget"); err == nil {
		config.Budget = budget
	}
	if preset, err := cmd.Flags().GetString("preset"); err == nil {
		config.Preset = preset
	}
	if mode, err := cmd.Flags().GetString("mode"); err == nil {
		config.Mode = mode
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}

	return config
}

func runPlanCommand(ctx context.Context, flags *PlanConfig) {
	cfg, err := config.Load()
	if err != nil {
		presenter.Error(err, "failed to load configuration")
		os.Exit(1)
	}
	if flags.Budget > 0 {
		cfg.Budget = flags.Budget
	}
	if flags.Preset != "" {
		cfg.BudgetPreset = flags.Preset
	}
	if flags.Mode != "" {
		cfg.Mode = flags.Mode
	}

	budget, err := cfg.ResolveBudget()
	if err != nil {
		presenter.Error(err, "invalid budget")
		os.Exit(1)
	}
	mode, err := cfg.ResolveMode()
	if err != nil {
		presenter.Error(err, "invalid mode")
		os.Exit(1)
	}

	cat, err := buildCatalog(cfg)
	if err != nil {
		presenter.Error(err, "failed to load catalog")
		os.Exit(1)
	}

	detection := detectProject(ctx)

	var plan *planner.LoadPlan
	err = telemetry.WithSpan(ctx, "plan.resolve", func(ctx context.Context) error {
		var err error
		plan, err = planner.NewSelector(cat, mode).Initialize(ctx, detection.Framework, budget)
		return err
	},
		attribute.Int("plan.budget", budget),
		attribute.String("plan.framework", detection.Framework),
		attribute.String("plan.mode", string(mode)),
	)
	if err != nil {
		var deficit *planner.BudgetDeficitError
		if errors.As(err, &deficit) {
			presenter.Error(err, "the budget cannot cover the mandatory artifacts")
		} else {
			presenter.Error(err, "failed to resolve plan")
		}
		os.Exit(1)
	}

	sessions, err := session.NewStore(".")
	if err != nil {
		presenter.Error(err, "failed to open session store")
		os.Exit(1)
	}
	if _, err := sessions.Update(func(*planner.LoadPlan) (*planner.LoadPlan, error) {
		return plan, nil
	}); err != nil {
		presenter.Error(err, "failed to save plan")
		os.Exit(1)
	}

	recordRun(ctx, cfg, history.NewRun("plan", projectPath(), plan))

	if flags.Output != "text" {
		out, err := renderPlan(plan, flags.Output)
		if err != nil {
			presenter.Error(err, "failed to render plan")
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	presentPlan(plan)
	presenter.Info(fmt.Sprintf("Plan saved to %s; run `loadout apply` to install it", sessions.Path()))
}

// presentPlan renders the text form: a stats block, the selected artifact
// table, and any advisories or evictions.
func presentPlan(plan *planner.LoadPlan) {
	presenter.Stats(&presenter.PlanStats{
		Budget:     plan.Budget,
		TotalCost:  plan.TotalCost,
		Artifacts:  len(plan.Selected),
		Framework:  plan.Framework,
		Mode:       string(plan.Mode),
		Advisories: len(plan.Advisories),
		Evictions:  len(plan.Evictions),
	})

	if len(plan.Selected) > 0 && !presenter.IsQuiet() {
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ARTIFACT\tTIER\tCOST")
		fmt.Fprintln(tw, "--------\t----\t----")
		for _, sel := range plan.Selected {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", sel.ArtifactID, sel.Tier, sel.Cost)
		}
		tw.Flush()
	}

	for _, adv := range plan.Advisories {
		presenter.Warning(fmt.Sprintf("%s: %s", adv.ArtifactID, adv.Message))
	}
	for _, ev := range plan.Evictions {
		presenter.Warning(fmt.Sprintf("evicted %s (tier %d, %d tokens) to make room for %s",
			ev.ArtifactID, ev.Tier, ev.Cost, ev.For))
	}
}
