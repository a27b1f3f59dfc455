package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadout-sh/loadout/pkg/history"
	"github.com/loadout-sh/loadout/pkg/presenter"
)

type HistoryListConfig struct {
	Limit       int
	Command     string
	AllProjects bool
}

func NewHistoryListConfig() *HistoryListConfig {
	return &HistoryListConfig{
		Limit: 20,
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded plan and install runs",
	Long: `Inspect the runs recorded in the shared storage database: what was
planned, what was installed, and how each target fared.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs for this project",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getHistoryListConfigFromFlags(cmd)
		runHistoryListCommand(ctx, config)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run in full",
	Long: `Show a recorded run as JSON. The id may be abbreviated to any unique
prefix.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		runHistoryShowCommand(ctx, args[0])
	},
}

func init() {
	defaults := NewHistoryListConfig()
	historyListCmd.Flags().IntP("limit", "n", defaults.Limit, "Maximum number of runs to show")
	historyListCmd.Flags().String("command", defaults.Command, "Only show runs of one command (plan, apply, extend)")
	historyListCmd.Flags().BoolP("all-projects", "A", defaults.AllProjects, "Show runs from every project, not just this one")

	historyCmd.AddCommand(withTracing(historyListCmd))
	historyCmd.AddCommand(withTracing(historyShowCmd))
	rootCmd.AddCommand(historyCmd)
}

func getHistoryListConfigFromFlags(cmd *cobra.Command) *HistoryListConfig {
	config := NewHistoryListConfig()

	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		config.Limit = limit
	}
	if command, err := cmd.Flags().GetString("command"); err == nil {
		config.Command = command
	}
	if all, err := cmd.Flags().GetBool("all-projects"); err == nil {
		config.AllProjects = all
	}

	return config
}

func runHistoryListCommand(ctx context.Context, flags *HistoryListConfig) {
	store, err := openHistory(ctx)
	if err != nil {
		presenter.Error(err, "failed to open history store")
		os.Exit(1)
	}
	defer store.Close()

	opts := history.ListOptions{
		Limit:   flags.Limit,
		Command: flags.Command,
	}
	if !flags.AllProjects {
		opts.Project = projectPath()
	}

	runs, err := store.List(ctx, opts)
	if err != nil {
		presenter.Error(err, "failed to list runs")
		os.Exit(1)
	}
	if len(runs) == 0 {
		presenter.Info("No recorded runs")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if flags.AllProjects {
		fmt.Fprintln(tw, "ID\tCREATED\tCOMMAND\tPROJECT\tARTIFACTS\tCOST\tTARGETS")
		fmt.Fprintln(tw, "--\t-------\t-------\t-------\t---------\t----\t-------")
	} else {
		fmt.Fprintln(tw, "ID\tCREATED\tCOMMAND\tARTIFACTS\tCOST\tTARGETS")
		fmt.Fprintln(tw, "--\t-------\t-------\t---------\t----\t-------")
	}

	for _, run := range runs {
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		created := run.CreatedAt.Format(time.RFC3339)
		cost := fmt.Sprintf("%d/%d", run.TotalCost, run.Budget)
		if flags.AllProjects {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				id, created, run.Command, run.Project, len(run.Selected), cost, formatTargetNotes(run.Targets))
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				id, created, run.Command, len(run.Selected), cost, formatTargetNotes(run.Targets))
		}
	}
	tw.Flush()
}

// formatTargetNotes renders install outcomes as a compact target list,
// marking failures. "-" means the run installed nothing.
func formatTargetNotes(targets map[string]history.TargetNote) string {
	if len(targets) == 0 {
		return "-"
	}

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if targets[name].Error != "" {
			parts = append(parts, name+"(failed)")
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ",")
}

func runHistoryShowCommand(ctx context.Context, id string) {
	store, err := openHistory(ctx)
	if err != nil {
		presenter.Error(err, "failed to open history store")
		os.Exit(1)
	}
	defer store.Close()

	run, err := store.Get(ctx, id)
	if err != nil {
		presenter.Error(err, "failed to load run")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		presenter.Error(err, "failed to encode run")
		os.Exit(1)
	}
	fmt.Println(string(out))
}
