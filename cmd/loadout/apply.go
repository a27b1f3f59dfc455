package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/detect"
	"github.com/loadout-sh/loadout/pkg/history"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/planner"
	"github.com/loadout-sh/loadout/pkg/presenter"
	"github.com/loadout-sh/loadout/pkg/session"
	"github.com/loadout-sh/loadout/pkg/telemetry"
)

type ApplyConfig struct {
	DryRun  bool
	Targets []string
	Fresh   bool
}

func NewApplyConfig() *ApplyConfig {
	return &ApplyConfig{}
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Install the planned docs into agent locations",
	Long: `Render the saved plan for each install target and publish it
atomically: .claude/skills gets one skill directory per artifact, the
rule-file targets (cursor, windsurf, copilot) get one managed file.

Unchanged targets are never rewritten. A failing target never blocks its
siblings; the exit code is non-zero only when every target fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getApplyConfigFromFlags(cmd)
		runApplyCommand(ctx, config)
	},
}

func init() {
	defaults := NewApplyConfig()
	applyCmd.Flags().Bool("dry-run", defaults.DryRun, "Show unified diffs of what would change without writing")
	applyCmd.Flags().StringSlice("target", defaults.Targets, "Install only the named targets (claude, cursor, windsurf, copilot)")
	applyCmd.Flags().Bool("fresh", defaults.Fresh, "Re-resolve the plan from a fresh detection before installing")
	rootCmd.AddCommand(withTracing(applyCmd))
}

func getApplyConfigFromFlags(cmd *cobra.Command) *ApplyConfig {
	config := NewApplyConfig()

	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if targets, err := cmd.Flags().GetStringSlice("target"); err == nil {
		config.Targets = targets
	}
	if fresh, err := cmd.Flags().GetBool("fresh"); err == nil {
		config.Fresh = fresh
	}

	return config
}

func runApplyCommand(ctx context.Context, flags *ApplyConfig) {
	cfg, err := config.Load()
	if err != nil {
		presenter.Error(err, "failed to load configuration")
		os.Exit(1)
	}
	cat, err := buildCatalog(cfg)
	if err != nil {
		presenter.Error(err, "failed to load catalog")
		os.Exit(1)
	}
	sessions, err := session.NewStore(".")
	if err != nil {
		presenter.Error(err, "failed to open session store")
		os.Exit(1)
	}

	detection := detectProject(ctx)

	plan, err := sessions.Load()
	if err != nil && !errors.Is(err, session.ErrNoPlan) {
		presenter.Error(err, "failed to load plan")
		os.Exit(1)
	}
	if errors.Is(err, session.ErrNoPlan) && !flags.Fresh {
		presenter.Error(err, "no plan for this project; run `loadout plan` first or pass --fresh")
		os.Exit(1)
	}

	if flags.Fresh {
		plan = replan(ctx, cfg, cat, sessions, detection, plan)
	}

	profiles, err := resolveProfiles(cfg, detection.HostAgents, flags.Targets)
	if err != nil {
		presenter.Error(err, "invalid install target")
		os.Exit(1)
	}

	installer, err := install.NewInstaller(cat,
		install.WithRoot("."),
		install.WithProfiles(profiles),
		install.WithDryRun(flags.DryRun),
	)
	if err != nil {
		presenter.Error(err, "failed to configure installer")
		os.Exit(1)
	}

	var results map[string]*install.TargetResult
	err = telemetry.WithSpan(ctx, "install.apply", func(ctx context.Context) error {
		var err error
		results, err = installer.Apply(ctx, plan)
		return err
	},
		attribute.Int("install.targets", len(profiles)),
		attribute.Bool("install.dry_run", flags.DryRun),
	)
	if err != nil {
		presenter.Error(err, "install failed")
		os.Exit(1)
	}

	presentResults(results, flags.DryRun)

	if !flags.DryRun {
		recordRun(ctx, cfg, history.NewRun("apply", projectPath(), plan).WithTargets(results))
	}

	if install.AllFailed(results) {
		os.Exit(1)
	}
}

// replan rebuilds and saves the plan, carrying budget and mode over from
// the previous plan when one exists.
func replan(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, sessions *session.Store, detection detect.Result, previous *planner.LoadPlan) *planner.LoadPlan {
	budget, mode := 0, planner.ModeRelaxed
	if previous != nil {
		budget = previous.Budget
		mode = previous.Mode
	} else {
		var err error
		if budget, err = cfg.ResolveBudget(); err != nil {
			presenter.Error(err, "invalid budget")
			os.Exit(1)
		}
		if mode, err = cfg.ResolveMode(); err != nil {
			presenter.Error(err, "invalid mode")
			os.Exit(1)
		}
	}

	plan, err := planner.NewSelector(cat, mode).Initialize(ctx, detection.Framework, budget)
	if err != nil {
		presenter.Error(err, "failed to resolve plan")
		os.Exit(1)
	}
	if _, err := sessions.Update(func(*planner.LoadPlan) (*planner.LoadPlan, error) {
		return plan, nil
	}); err != nil {
		presenter.Error(err, "failed to save plan")
		os.Exit(1)
	}
	return plan
}

func sortedTargetNames(results map[string]*install.TargetResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func presentResults(results map[string]*install.TargetResult, dryRun bool) {
	for _, name := range sortedTargetNames(results) {
		res := results[name]
		if res.Err != nil {
			presenter.Error(res.Err, fmt.Sprintf("target %s failed", name))
			continue
		}
		if !res.Changed() {
			presenter.Info(fmt.Sprintf("%s: up to date", name))
			continue
		}
		if dryRun {
			presenter.Info(fmt.Sprintf("%s: %d to write, %d to remove", name, len(res.Written), len(res.Removed)))
			paths := make([]string, 0, len(res.Diffs))
			for rel := range res.Diffs {
				paths = append(paths, rel)
			}
			sort.Strings(paths)
			for _, rel := range paths {
				fmt.Print(res.Diffs[rel])
			}
			continue
		}
		presenter.Success(fmt.Sprintf("%s: wrote %d, removed %d, kept %d",
			name, len(res.Written), len(res.Removed), len(res.Unchanged)))
	}
}
