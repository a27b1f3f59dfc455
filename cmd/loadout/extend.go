package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/history"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/planner"
	"github.com/loadout-sh/loadout/pkg/presenter"
	"github.com/loadout-sh/loadout/pkg/session"
	"github.com/loadout-sh/loadout/pkg/trigger"
)

type ExtendConfig struct {
	Apply   bool
	Targets []string
}

func NewExtendConfig() *ExtendConfig {
	return &ExtendConfig{
		Apply: true,
	}
}

var extendCmd = &cobra.Command{
	Use:   "extend [hint]...",
	Short: "Pull extra docs into the plan from a free-text hint",
	Long: `Match a free-text hint (a task description, a topic, pasted error
text) against the catalog's trigger phrases and extend the plan with
whatever matches, within the remaining budget.

In relaxed mode an artifact that does not fit is skipped with an
advisory. In strict mode tier 5 and 6 artifacts are evicted, highest
tier first, to make room. The updated plan is installed unless
--apply=false.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getExtendConfigFromFlags(cmd)
		runExtendCommand(ctx, config, strings.Join(args, " "))
	},
}

func init() {
	defaults := NewExtendConfig()
	extendCmd.Flags().Bool("apply", defaults.Apply, "Install the updated plan after extending")
	extendCmd.Flags().StringSlice("target", defaults.Targets, "Install only the named targets (claude, cursor, windsurf, copilot)")
	rootCmd.AddCommand(withTracing(extendCmd))
}

func getExtendConfigFromFlags(cmd *cobra.Command) *ExtendConfig {
	config := NewExtendConfig()

	if apply, err := cmd.Flags().GetBool("apply"); err == nil {
		config.Apply = apply
	}
	if targets, err := cmd.Flags().GetStringSlice("target"); err == nil {
		config.Targets = targets
	}

	return config
}

func runExtendCommand(ctx context.Context, flags *ExtendConfig, hint string) {
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

	matched := trigger.Match(hint, cat)
	if len(matched) == 0 {
		presenter.Info("No documentation matched the hint; the plan is unchanged")
		return
	}
	presenter.Info(fmt.Sprintf("Matched: %s", strings.Join(matched, ", ")))

	before := make(map[string]bool)
	beforeVersion, beforeAdvisories, beforeEvictions := 0, 0, 0
	updated, err := sessions.Update(func(current *planner.LoadPlan) (*planner.LoadPlan, error) {
		if current == nil {
			return nil, errors.New("no plan for this project; run `loadout plan` first")
		}
		beforeVersion = current.Version
		beforeAdvisories = len(current.Advisories)
		beforeEvictions = len(current.Evictions)
		for _, sel := range current.Selected {
			before[sel.ArtifactID] = true
		}
		return planner.NewSelector(cat, current.Mode).Extend(ctx, current, matched)
	})
	if err != nil {
		presenter.Error(err, "failed to extend plan")
		os.Exit(1)
	}

	for _, sel := range updated.Selected {
		if !before[sel.ArtifactID] {
			presenter.Success(fmt.Sprintf("Added %s (tier %d, %d tokens)", sel.ArtifactID, sel.Tier, sel.Cost))
		}
	}
	for _, adv := range updated.Advisories[beforeAdvisories:] {
		presenter.Warning(fmt.Sprintf("%s: %s", adv.ArtifactID, adv.Message))
	}
	for _, ev := range updated.Evictions[beforeEvictions:] {
		presenter.Warning(fmt.Sprintf("evicted %s (tier %d, %d tokens) to make room for %s",
			ev.ArtifactID, ev.Tier, ev.Cost, ev.For))
	}

	if updated.Version == beforeVersion {
		presenter.Info("Plan unchanged")
		recordRun(ctx, cfg, history.NewRun("extend", projectPath(), updated))
		return
	}

	presenter.Stats(&presenter.PlanStats{
		Budget:     updated.Budget,
		TotalCost:  updated.TotalCost,
		Artifacts:  len(updated.Selected),
		Framework:  updated.Framework,
		Mode:       string(updated.Mode),
		Advisories: len(updated.Advisories),
		Evictions:  len(updated.Evictions),
	})

	if !flags.Apply {
		recordRun(ctx, cfg, history.NewRun("extend", projectPath(), updated))
		presenter.Info("Run `loadout apply` to install the updated plan")
		return
	}

	detection := detectProject(ctx)
	profiles, err := resolveProfiles(cfg, detection.HostAgents, flags.Targets)
	if err != nil {
		presenter.Error(err, "invalid install target")
		os.Exit(1)
	}
	installer, err := install.NewInstaller(cat, install.WithRoot("."), install.WithProfiles(profiles))
	if err != nil {
		presenter.Error(err, "failed to configure installer")
		os.Exit(1)
	}
	results, err := installer.Apply(ctx, updated)
	if err != nil {
		presenter.Error(err, "install failed")
		os.Exit(1)
	}

	presentResults(results, false)
	recordRun(ctx, cfg, history.NewRun("extend", projectPath(), updated).WithTargets(results))

	if install.AllFailed(results) {
		os.Exit(1)
	}
}
