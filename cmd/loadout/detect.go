package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loadout-sh/loadout/pkg/detect"
	"github.com/loadout-sh/loadout/pkg/presenter"
)

type DetectConfig struct {
	Output string
}

func NewDetectConfig() *DetectConfig {
	return &DetectConfig{
		Output: "text",
	}
}

var detectCmd = &cobra.Command{
	Use:   "detect [path]",
	Short: "Report the detected framework and host agents for a project",
	Long: `Scan a project directory and report what detection sees: the
framework the catalog would plan for, and the AI coding agents already
configured in the project. With no argument the current directory is
scanned.

Unlike plan and apply, which degrade to generic content when a project
cannot be scanned, detect fails loudly so scan problems are visible.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getDetectConfigFromFlags(cmd)
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		runDetectCommand(ctx, config, root)
	},
}

func init() {
	defaults := NewDetectConfig()
	detectCmd.Flags().StringP("output", "o", defaults.Output, "Output format (text, json)")
	rootCmd.AddCommand(withTracing(detectCmd))
}

func getDetectConfigFromFlags(cmd *cobra.Command) *DetectConfig {
	config := NewDetectConfig()

	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}

	return config
}

func runDetectCommand(ctx context.Context, flags *DetectConfig, root string) {
	sig, err := detect.Scan(ctx, root)
	if err != nil {
		presenter.Error(err, "failed to scan project")
		os.Exit(1)
	}
	result := detect.Detect(sig)

	switch flags.Output {
	case "json":
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to encode result")
			os.Exit(1)
		}
		fmt.Println(string(out))
	case "text":
		if result.Framework == "" {
			presenter.Info("Framework: none detected")
		} else {
			presenter.Info(fmt.Sprintf("Framework: %s", result.Framework))
		}
		if len(result.HostAgents) == 0 {
			presenter.Info("Host agents: none detected")
		} else {
			presenter.Info(fmt.Sprintf("Host agents: %s", strings.Join(result.HostAgents, ", ")))
		}
	default:
		presenter.Error(fmt.Errorf("unknown output format %q: valid formats are text, json", flags.Output), "invalid flag")
		os.Exit(1)
	}
}
