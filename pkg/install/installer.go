package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aymanbagabas/go-udiff"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/logger"
	"github.com/loadout-sh/loadout/pkg/planner"
)

// InstallError wraps a failure scoped to one target. Sibling targets are
// unaffected and report their own results.
type InstallError struct {
	Target string
	Err    error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install target %s: %v", e.Target, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// TargetResult reports what happened to one target during Apply. In
// dry-run mode Written and Removed list what would change and Diffs holds
// the unified diffs; nothing is touched on disk.
type TargetResult struct {
	Target    string
	Written   []string
	Removed   []string
	Unchanged []string
	Diffs     map[string]string
	Err       error
}

// Changed reports whether the target differs from the desired state.
func (r *TargetResult) Changed() bool {
	return len(r.Written)+len(r.Removed) > 0
}

// AllFailed reports whether every requested target failed. This is the
// exit-code policy: partial success is still success.
func AllFailed(results map[string]*TargetResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Err == nil {
			return false
		}
	}
	return true
}

// FailedTargets lists the targets that reported an error, sorted.
func FailedTargets(results map[string]*TargetResult) []string {
	var failed []string
	for name, r := range results {
		if r.Err != nil {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// Installer materializes load plans into agent-specific files under a
// repo root. One installer handles a fixed set of target profiles.
type Installer struct {
	root     string
	catalog  *catalog.Catalog
	profiles []TargetProfile
	dryRun   bool
}

// Option configures an Installer instance.
type Option func(*Installer)

// WithRoot sets the repo root the targets are written under.
func WithRoot(root string) Option {
	return func(i *Installer) {
		i.root = root
	}
}

// WithProfiles overrides the default target profiles.
func WithProfiles(profiles []TargetProfile) Option {
	return func(i *Installer) {
		i.profiles = profiles
	}
}

// WithDryRun computes diffs instead of writing.
func WithDryRun(dryRun bool) Option {
	return func(i *Installer) {
		i.dryRun = dryRun
	}
}

// NewInstaller creates an installer over a catalog. By default it writes
// all built-in targets under the current directory.
func NewInstaller(c *catalog.Catalog, opts ...Option) (*Installer, error) {
	if c == nil {
		return nil, errors.New("installer requires a catalog")
	}

	i := &Installer{
		root:     ".",
		catalog:  c,
		profiles: DefaultProfiles(),
	}
	for _, opt := range opts {
		opt(i)
	}

	if len(i.profiles) == 0 {
		return nil, errors.New("installer requires at least one target profile")
	}
	return i, nil
}

// Apply installs the plan into every configured target. Targets fan out
// concurrently; each owns a disjoint subtree so they never contend. A
// failing target is recorded in its result and does not stop the others.
func (i *Installer) Apply(ctx context.Context, plan *planner.LoadPlan) (map[string]*TargetResult, error) {
	if plan == nil {
		return nil, errors.New("cannot install a nil plan")
	}

	results := make([]*TargetResult, len(i.profiles))
	var wg sync.WaitGroup
	for idx, profile := range i.profiles {
		wg.Add(1)
		go func(idx int, profile TargetProfile) {
			defer wg.Done()
			results[idx] = i.installTarget(ctx, plan, profile)
		}(idx, profile)
	}
	wg.Wait()

	out := make(map[string]*TargetResult, len(results))
	for _, r := range results {
		out[r.Target] = r
	}
	return out, nil
}

type actionKind int

const (
	actionWrite actionKind = iota
	actionRemove
)

// fileAction is one pending change: a file (or managed skill directory)
// to write or remove, with both sides of the content for diffing.
type fileAction struct {
	rel      string
	kind     actionKind
	old      string
	new      string
	skillDir bool
}

func (i *Installer) installTarget(ctx context.Context, plan *planner.LoadPlan, profile TargetProfile) *TargetResult {
	res := &TargetResult{Target: profile.Name}
	log := logger.G(ctx).WithField("target", profile.Name)

	if err := ctx.Err(); err != nil {
		res.Err = &InstallError{Target: profile.Name, Err: err}
		return res
	}

	desired, err := desiredState(plan, i.catalog, profile)
	if err != nil {
		res.Err = &InstallError{Target: profile.Name, Err: err}
		return res
	}

	actions, unchanged, err := i.planActions(profile, desired)
	if err != nil {
		res.Err = &InstallError{Target: profile.Name, Err: err}
		return res
	}
	res.Unchanged = unchanged

	if i.dryRun {
		res.Diffs = make(map[string]string, len(actions))
		for _, action := range actions {
			res.Diffs[action.rel] = udiff.Unified("a/"+action.rel, "b/"+action.rel, action.old, action.new)
			if action.kind == actionRemove {
				res.Removed = append(res.Removed, action.rel)
			} else {
				res.Written = append(res.Written, action.rel)
			}
		}
		return res
	}

	var errs *multierror.Error
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		if err := i.execute(action, profile); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if action.kind == actionRemove {
			res.Removed = append(res.Removed, action.rel)
		} else {
			res.Written = append(res.Written, action.rel)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		res.Err = &InstallError{Target: profile.Name, Err: err}
		log.WithError(err).Debug("target install failed")
		return res
	}

	log.WithField("written", len(res.Written)).WithField("unchanged", len(res.Unchanged)).
		WithField("removed", len(res.Removed)).Debug("target installed")
	return res
}

// planActions diffs the desired state against disk. Unchanged files cost
// zero writes. Files that exist but carry no loadout marking are left
// alone and reported as errors rather than silently overwritten.
func (i *Installer) planActions(profile TargetProfile, desired map[string]string) ([]fileAction, []string, error) {
	var (
		actions   []fileAction
		unchanged []string
		errs      *multierror.Error
	)

	paths := make([]string, 0, len(desired))
	for rel := range desired {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		content := desired[rel]
		existing, err := os.ReadFile(filepath.Join(i.root, rel))
		switch {
		case err == nil && string(existing) == content:
			unchanged = append(unchanged, rel)
		case err == nil:
			if !isManaged(string(existing)) {
				errs = multierror.Append(errs, errors.Errorf("refusing to overwrite unmanaged file %s", rel))
				continue
			}
			actions = append(actions, fileAction{
				rel:      rel,
				kind:     actionWrite,
				old:      string(existing),
				new:      content,
				skillDir: profile.Layout == LayoutSkillTree,
			})
		case os.IsNotExist(err):
			actions = append(actions, fileAction{
				rel:      rel,
				kind:     actionWrite,
				new:      content,
				skillDir: profile.Layout == LayoutSkillTree,
			})
		default:
			errs = multierror.Append(errs, errors.Wrapf(err, "failed to read %s", rel))
		}
	}

	if profile.Layout == LayoutSkillTree {
		stale, err := i.staleSkills(profile, desired)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		actions = append(actions, stale...)
	}

	return actions, unchanged, errs.ErrorOrNil()
}

// staleSkills finds managed skill directories whose artifact left the
// plan. Directories without a loadout marker belong to the user and are
// never touched.
func (i *Installer) staleSkills(profile TargetProfile, desired map[string]string) ([]fileAction, error) {
	entries, err := os.ReadDir(filepath.Join(i.root, profile.Dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", profile.Dir)
	}

	var stale []fileAction
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rel := filepath.Join(profile.Dir, entry.Name(), "SKILL.md")
		if _, ok := desired[rel]; ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(i.root, rel))
		if err != nil {
			continue
		}
		if _, ok := managedArtifactID(string(content)); !ok {
			continue
		}
		stale = append(stale, fileAction{rel: rel, kind: actionRemove, old: string(content), skillDir: true})
	}
	return stale, nil
}

func (i *Installer) execute(action fileAction, profile TargetProfile) error {
	abs := filepath.Join(i.root, action.rel)

	if action.kind == actionRemove {
		if action.skillDir {
			return errors.Wrapf(os.RemoveAll(filepath.Dir(abs)), "failed to remove %s", filepath.Dir(action.rel))
		}
		return errors.Wrapf(os.Remove(abs), "failed to remove %s", action.rel)
	}

	if action.skillDir {
		return i.swapSkillDir(filepath.Dir(abs), action.new)
	}
	return i.publishFile(abs, action.new)
}

// publishFile writes content next to the destination and renames it into
// place so readers never observe a half-written file.
func (i *Installer) publishFile(abs, content string) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	stage := stagePath(dir, filepath.Base(abs))
	if err := os.WriteFile(stage, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to stage %s", abs)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(stage)
		}
	}()

	if err := os.Rename(stage, abs); err != nil {
		return errors.Wrapf(err, "failed to publish %s", abs)
	}
	success = true
	return nil
}

// swapSkillDir stages a fresh skill directory and swaps it in with two
// renames, so the published directory is always complete. On a failed
// swap the previous directory is restored.
func (i *Installer) swapSkillDir(absDir, content string) error {
	parent := filepath.Dir(absDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", parent)
	}

	stage := stagePath(parent, filepath.Base(absDir))
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return errors.Wrapf(err, "failed to stage %s", absDir)
	}

	success := false
	defer func() {
		if !success {
			os.RemoveAll(stage)
		}
	}()

	if err := os.WriteFile(filepath.Join(stage, "SKILL.md"), []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to stage %s", absDir)
	}

	if _, err := os.Stat(absDir); err == nil {
		old := stagePath(parent, filepath.Base(absDir)+".old")
		if err := os.Rename(absDir, old); err != nil {
			return errors.Wrapf(err, "failed to retire %s", absDir)
		}
		if err := os.Rename(stage, absDir); err != nil {
			os.Rename(old, absDir)
			return errors.Wrapf(err, "failed to publish %s", absDir)
		}
		success = true
		os.RemoveAll(old)
		return nil
	}

	if err := os.Rename(stage, absDir); err != nil {
		return errors.Wrapf(err, "failed to publish %s", absDir)
	}
	success = true
	return nil
}

func stagePath(dir, base string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s.stage-%s", base, uuid.NewString()[:8]))
}

func isManaged(content string) bool {
	if strings.Contains(content, managedHeader) {
		return true
	}
	_, ok := managedArtifactID(content)
	return ok
}
