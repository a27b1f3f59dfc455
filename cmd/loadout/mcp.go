package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/mcpserver"
	"github.com/loadout-sh/loadout/pkg/presenter"
	"github.com/loadout-sh/loadout/pkg/session"
	"github.com/loadout-sh/loadout/pkg/version"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the load plan over MCP on stdio",
	Long: `Run an MCP server on stdio so agents can inspect the current plan,
browse the catalog, and pull extra documentation in from a task hint
mid-session. Stdout carries the protocol; all logging goes to stderr.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runMCPServeCommand(cmd.Context())
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServeCommand(parent context.Context) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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
	profiles, err := resolveProfiles(cfg, detection.HostAgents, nil)
	if err != nil {
		presenter.Error(err, "invalid install target")
		os.Exit(1)
	}
	installer, err := install.NewInstaller(cat, install.WithRoot("."), install.WithProfiles(profiles))
	if err != nil {
		presenter.Error(err, "failed to configure installer")
		os.Exit(1)
	}

	srv, err := mcpserver.NewServer(mcpserver.Config{
		Name:      "loadout",
		Version:   version.Get().Version,
		Catalog:   cat,
		Sessions:  sessions,
		Installer: installer,
	})
	if err != nil {
		presenter.Error(err, "failed to create MCP server")
		os.Exit(1)
	}

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		presenter.Error(err, "MCP server error")
		os.Exit(1)
	}
}
