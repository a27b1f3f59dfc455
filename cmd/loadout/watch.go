package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/loadout-sh/loadout/pkg/config"
	"github.com/loadout-sh/loadout/pkg/history"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/logger"
	"github.com/loadout-sh/loadout/pkg/planner"
	"github.com/loadout-sh/loadout/pkg/presenter"
	"github.com/loadout-sh/loadout/pkg/session"
)

// maxWatchDepth mirrors the scan depth: markers that change detection live
// near the root, so there is no point watching deeper.
const maxWatchDepth = 4

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	IgnoreDirs   []string
	DebounceTime int
	Targets      []string
}

// NewWatchConfig creates a new WatchConfig with default values. The ignore
// list covers the directories loadout itself writes into; watching those
// would turn every install into another reconcile.
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		IgnoreDirs: []string{
			".git", "node_modules", "vendor", "dist", "build", "target",
			".loadout", ".claude", ".cursor", ".github", ".windsurf",
		},
		DebounceTime: 1000,
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	return nil
}

// FileEvent represents a file system event with additional metadata
type FileEvent struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and keep installed docs in sync",
	Long: `Continuously monitor the project and reconcile the installed
documentation whenever it changes: re-detect the framework, re-plan if it
changed (or no plan exists yet), and re-apply the plan. Installs are
idempotent, so a reconcile that finds nothing to do writes nothing.

Directories loadout installs into are ignored so its own writes do not
trigger another reconcile.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		config := getWatchConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			presenter.Error(err, "invalid configuration")
			os.Exit(1)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			presenter.Warning("Shutting down...")
			cancel()
		}()

		runWatchMode(ctx, config)
	},
}

func init() {
	defaults := NewWatchConfig()
	watchCmd.Flags().StringSliceP("ignore", "i", defaults.IgnoreDirs, "Directories to ignore")
	watchCmd.Flags().IntP("debounce", "d", defaults.DebounceTime, "Debounce time in milliseconds for file change events")
	watchCmd.Flags().StringSlice("target", defaults.Targets, "Install only the named targets (claude, cursor, windsurf, copilot)")
	rootCmd.AddCommand(withTracing(watchCmd))
}

// getWatchConfigFromFlags extracts watch configuration from command flags
func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	config := NewWatchConfig()

	if ignoreDirs, err := cmd.Flags().GetStringSlice("ignore"); err == nil {
		config.IgnoreDirs = ignoreDirs
	}
	if debounceTime, err := cmd.Flags().GetInt("debounce"); err == nil {
		config.DebounceTime = debounceTime
	}
	if targets, err := cmd.Flags().GetStringSlice("target"); err == nil {
		config.Targets = targets
	}

	return config
}

func runWatchMode(ctx context.Context, config *WatchConfig) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		presenter.Error(err, "failed to create file watcher")
		logger.G(ctx).WithError(err).Fatal("Failed to create file watcher")
	}
	defer watcher.Close()

	events := make(chan FileEvent)
	debouncedEvents := make(chan FileEvent)

	go debounceFileEvents(ctx, events, debouncedEvents, time.Duration(config.DebounceTime)*time.Millisecond)

	// Process debounced events: each one stands for a burst of changes and
	// triggers a single reconcile.
	go func() {
		for {
			select {
			case event, ok := <-debouncedEvents:
				if !ok {
					return
				}
				presenter.Info(fmt.Sprintf("Change detected: %s (%s)", event.Path, event.Op))
				logger.G(ctx).WithFields(map[string]interface{}{
					"file":      event.Path,
					"operation": event.Op.String(),
					"timestamp": event.Time,
				}).Debug("File change detected")
				reconcileProject(ctx, config)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Watch for events
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ignoreEvent(event.Name, config.IgnoreDirs) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					events <- FileEvent{
						Path: event.Name,
						Op:   event.Op,
						Time: time.Now(),
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				presenter.Error(err, "file watcher error")
				logger.G(ctx).WithError(err).Error("Error watching files")
			case <-ctx.Done():
				return
			}
		}
	}()

	// Add the project root and its subdirectories to the watcher, bounded
	// to the depth detection scans.
	err = filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		for _, ignoreDir := range config.IgnoreDirs {
			if path == ignoreDir || strings.Contains(path, ignoreDir+string(os.PathSeparator)) {
				return filepath.SkipDir
			}
		}
		if strings.Count(filepath.ToSlash(path), "/")+1 > maxWatchDepth {
			return filepath.SkipDir
		}
		logger.G(ctx).WithField("directory", path).Debug("Adding directory to watcher")
		return watcher.Add(path)
	})
	if err != nil {
		presenter.Error(err, "failed to watch directories")
		logger.G(ctx).WithError(err).Fatal("Failed to watch directories")
	}

	// Reconcile once up front so the install reflects the project as it is
	// now, not as of the last run.
	reconcileProject(ctx, config)

	presenter.Info("Watching for project changes... Press Ctrl+C to stop")
	logger.G(ctx).Info("File watcher initialized")

	<-ctx.Done()
}

// ignoreEvent reports whether an event path falls under an ignored
// directory or is a file loadout installs at the project root.
func ignoreEvent(name string, ignoreDirs []string) bool {
	name = filepath.Clean(name)
	if filepath.Base(name) == ".windsurfrules" {
		return true
	}
	for _, ignoreDir := range ignoreDirs {
		if name == ignoreDir || strings.Contains(name, ignoreDir+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}

// debounceFileEvents coalesces bursts of file events into one: every event
// resets a single timer, and only the last event of a burst is delivered.
// A reconcile looks at the whole project, so per-file granularity would
// just repeat the same work.
func debounceFileEvents(ctx context.Context, input <-chan FileEvent, output chan<- FileEvent, delay time.Duration) {
	var pending *time.Timer

	for {
		select {
		case event, ok := <-input:
			if !ok {
				if pending != nil {
					pending.Stop()
				}
				return
			}
			if pending != nil {
				pending.Stop()
			}
			eventCopy := event
			pending = time.AfterFunc(delay, func() {
				select {
				case output <- eventCopy:
				case <-ctx.Done():
				}
			})
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return
		}
	}
}

// reconcileProject brings the installed documentation back in line with
// the project: re-detect, re-plan when the framework changed or no plan
// exists, and re-apply. Failures are logged and the watch continues; the
// next change gets another chance.
func reconcileProject(ctx context.Context, flags *WatchConfig) {
	log := logger.G(ctx)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Warn("reconcile skipped: failed to load configuration")
		return
	}
	cat, err := buildCatalog(cfg)
	if err != nil {
		log.WithError(err).Warn("reconcile skipped: failed to load catalog")
		return
	}
	sessions, err := session.NewStore(".")
	if err != nil {
		log.WithError(err).Warn("reconcile skipped: failed to open session store")
		return
	}

	detection := detectProject(ctx)

	replanned := false
	plan, err := sessions.Update(func(current *planner.LoadPlan) (*planner.LoadPlan, error) {
		if current != nil && current.Framework == detection.Framework {
			return current, nil
		}

		budget, mode := 0, planner.ModeRelaxed
		if current != nil {
			budget = current.Budget
			mode = current.Mode
		} else {
			var err error
			if budget, err = cfg.ResolveBudget(); err != nil {
				return nil, err
			}
			if mode, err = cfg.ResolveMode(); err != nil {
				return nil, err
			}
		}

		next, err := planner.NewSelector(cat, mode).Initialize(ctx, detection.Framework, budget)
		if err != nil {
			return nil, err
		}
		replanned = true
		return next, nil
	})
	if err != nil {
		presenter.Warning(fmt.Sprintf("Reconcile failed: %v", err))
		log.WithError(err).Warn("reconcile failed to resolve plan")
		return
	}
	if replanned {
		if plan.Framework == "" {
			presenter.Info(fmt.Sprintf("Re-planned without a framework: %d artifacts, %d/%d tokens", len(plan.Selected), plan.TotalCost, plan.Budget))
		} else {
			presenter.Info(fmt.Sprintf("Re-planned for %s: %d artifacts, %d/%d tokens", plan.Framework, len(plan.Selected), plan.TotalCost, plan.Budget))
		}
	}

	profiles, err := resolveProfiles(cfg, detection.HostAgents, flags.Targets)
	if err != nil {
		presenter.Warning(fmt.Sprintf("Reconcile failed: %v", err))
		return
	}
	installer, err := install.NewInstaller(cat, install.WithRoot("."), install.WithProfiles(profiles))
	if err != nil {
		presenter.Warning(fmt.Sprintf("Reconcile failed: %v", err))
		return
	}
	results, err := installer.Apply(ctx, plan)
	if err != nil {
		presenter.Warning(fmt.Sprintf("Reconcile failed: %v", err))
		log.WithError(err).Warn("reconcile failed to install")
		return
	}

	changed := false
	for _, name := range sortedTargetNames(results) {
		res := results[name]
		if res.Err != nil {
			presenter.Warning(fmt.Sprintf("Target %s failed: %v", name, res.Err))
			changed = true
			continue
		}
		if res.Changed() {
			presenter.Success(fmt.Sprintf("%s: wrote %d, removed %d", name, len(res.Written), len(res.Removed)))
			changed = true
		}
	}

	// Only reconciles that did something are worth a history entry.
	if replanned || changed {
		recordRun(ctx, cfg, history.NewRun("watch", projectPath(), plan).WithTargets(results))
	}
}
