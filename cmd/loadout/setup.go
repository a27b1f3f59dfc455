package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/db"
	"github.com/loadout-sh/loadout/pkg/detect"
	"github.com/loadout-sh/loadout/pkg/history"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/logger"
	"github.com/loadout-sh/loadout/pkg/planner"
)

// buildCatalog loads the builtin document set plus any configured user
// directories.
func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	var opts []catalog.LoaderOption
	if len(cfg.Catalog.Dirs) > 0 {
		opts = append(opts, catalog.WithDirs(cfg.Catalog.Dirs...))
	}
	if len(cfg.Catalog.Exclude) > 0 {
		opts = append(opts, catalog.WithExcludes(cfg.Catalog.Exclude...))
	}
	return catalog.Load(opts...)
}

// resolveProfiles picks install targets: an explicit --target list wins,
// then targets.enabled from config, then detected host agents, and with
// nothing else to go on, every known target.
func resolveProfiles(cfg *config.Config, detected, explicit []string) ([]install.TargetProfile, error) {
	switch {
	case len(explicit) > 0:
		return install.ProfilesFor(explicit)
	case len(cfg.Targets.Enabled) > 0:
		return install.ProfilesFor(cfg.Targets.Enabled)
	case len(detected) > 0:
		return install.ProfilesFor(detected)
	default:
		return install.DefaultProfiles(), nil
	}
}

// detectProject scans the working directory. Scan failures degrade to the
// zero result so a broken project never blocks generic installs.
func detectProject(ctx context.Context) detect.Result {
	sig, err := detect.Scan(ctx, ".")
	if err != nil {
		logger.G(ctx).WithError(err).Warn("project scan failed, continuing without detection")
		return detect.Result{}
	}
	return detect.Detect(sig)
}

// openHistory opens the shared history store.
func openHistory(ctx context.Context) (*history.Store, error) {
	dbPath, err := db.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return history.NewStore(ctx, dbPath)
}

// recordRun appends a run to history. History failures are logged, never
// fatal: a missing database must not break plan or install flows.
func recordRun(ctx context.Context, cfg *config.Config, run *history.Run) {
	if !cfg.History.Enabled {
		return
	}
	store, err := openHistory(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("skipping history: cannot open store")
		return
	}
	defer store.Close()
	if err := store.Record(ctx, run); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to record run")
	}
}

// projectPath is the absolute working directory, recorded as the history
// project key.
func projectPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// renderPlan encodes a plan for the -o json|yaml output formats.
func renderPlan(plan *planner.LoadPlan, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "encoding plan")
		}
		return string(data), nil
	case "yaml":
		data, err := yaml.Marshal(plan)
		if err != nil {
			return "", errors.Wrap(err, "encoding plan")
		}
		return string(data), nil
	default:
		return "", errors.Errorf("unknown output format %q: valid formats are text, json, yaml", format)
	}
}
