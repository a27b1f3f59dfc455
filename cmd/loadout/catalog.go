package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/presenter"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and validate the artifact catalog",
	Long: `Inspect the artifacts the planner selects from: the built-in catalog
plus any directories configured under catalog.dirs, minus catalog.exclude
patterns.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all catalog artifacts",
	Run: func(cmd *cobra.Command, _ []string) {
		listCatalogCmd()
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one artifact's metadata and content",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showCatalogCmd(args[0])
	},
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the catalog and report every problem at once",
	Run: func(cmd *cobra.Command, _ []string) {
		validateCatalogCmd()
	},
}

var catalogSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for artifact frontmatter",
	Long: `Print the JSON Schema that artifact document frontmatter must conform
to, for editor integration and CI validation of catalog directories.`,
	Run: func(cmd *cobra.Command, _ []string) {
		schemaCatalogCmd()
	},
}

func init() {
	catalogCmd.AddCommand(withTracing(catalogListCmd))
	catalogCmd.AddCommand(withTracing(catalogShowCmd))
	catalogCmd.AddCommand(withTracing(catalogValidateCmd))
	catalogCmd.AddCommand(withTracing(catalogSchemaCmd))
	rootCmd.AddCommand(catalogCmd)
}

func loadCatalogOrExit() *catalog.Catalog {
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
	return cat
}

func listCatalogCmd() {
	cat := loadCatalogOrExit()

	artifacts := cat.Artifacts()
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ID < artifacts[j].ID
	})

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIER\tCATEGORY\tCOST\tSUMMARY")
	fmt.Fprintln(tw, "--\t----\t--------\t----\t-------")

	for _, a := range artifacts {
		summary := a.Summary
		if len(summary) > 60 {
			summary = summary[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", a.ID, a.Tier, a.Category, a.Cost, summary)
	}
	tw.Flush()
}

func showCatalogCmd(id string) {
	cat := loadCatalogOrExit()

	artifact, ok := cat.Get(id)
	if !ok {
		presenter.Error(fmt.Errorf("artifact %q is not in the catalog", id), "unknown artifact")
		os.Exit(1)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", artifact.ID)
	if artifact.Summary != "" {
		fmt.Fprintf(tw, "Summary:\t%s\n", artifact.Summary)
	}
	fmt.Fprintf(tw, "Tier:\t%d\n", artifact.Tier)
	fmt.Fprintf(tw, "Category:\t%s\n", artifact.Category)
	fmt.Fprintf(tw, "Cost:\t%d tokens\n", artifact.Cost)
	if artifact.Framework != "" {
		fmt.Fprintf(tw, "Framework:\t%s\n", artifact.Framework)
	}
	if len(artifact.Triggers) > 0 {
		fmt.Fprintf(tw, "Triggers:\t%s\n", strings.Join(artifact.Triggers, ", "))
	}
	if artifact.Source != "" {
		fmt.Fprintf(tw, "Source:\t%s\n", artifact.Source)
	}
	tw.Flush()

	fmt.Println()
	fmt.Print(artifact.Content)
	if !strings.HasSuffix(artifact.Content, "\n") {
		fmt.Println()
	}
}

func validateCatalogCmd() {
	cat := loadCatalogOrExit()
	presenter.Success(fmt.Sprintf("Catalog valid: %d artifacts", cat.Len()))
}

func schemaCatalogCmd() {
	out, err := json.MarshalIndent(catalog.Schema(), "", "  ")
	if err != nil {
		presenter.Error(err, "failed to encode schema")
		os.Exit(1)
	}
	fmt.Println(string(out))
}
