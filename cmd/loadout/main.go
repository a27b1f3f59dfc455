package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/logger"
	"github.com/loadout-sh/loadout/pkg/presenter"
)

func init() {
	config.Init()
}

// tracingShutdown flushes pending spans after the command tree finishes.
// Set in PersistentPreRun once flags have been parsed.
var tracingShutdown func(context.Context) error

var rootCmd = &cobra.Command{
	Use:   "loadout",
	Short: "Budgeted reference-doc loader for AI coding agents",
	Long: `Loadout decides which reference docs fit a token budget and installs
them where coding agents look for them: .claude/skills, .cursor/rules,
.windsurfrules, and .github/copilot-instructions.md.

Resolve a plan once per project with "loadout plan", install it with
"loadout apply", and pull extra docs mid-task with "loadout extend".`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			logger.SetLogLevel("info")
		}
		logger.SetLogFormat(viper.GetString("log_format"))

		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil {
			presenter.SetQuiet(quiet)
		}

		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialize tracing")
			return
		}
		tracingShutdown = shutdown
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt, json)")
	rootCmd.PersistentFlags().String("profile", "", "Named configuration profile to apply")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))

	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	if tracingShutdown != nil {
		_ = tracingShutdown(ctx)
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
