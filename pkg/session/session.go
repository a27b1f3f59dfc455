// Package session persists the per-project load plan. The plan lives in
// .loadout/plan.json at the repo root and is read and written through OS
// file locks, so concurrent invocations (CLI, watch, MCP) racing on one
// project never corrupt or lose a plan.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/loadout-sh/loadout/pkg/planner"
)

const (
	sessionDir = ".loadout"
	planFile   = "plan.json"
)

// ErrNoPlan is returned when the project has no stored plan yet.
var ErrNoPlan = errors.New("no plan found for this project")

// Store manages the plan file of one project. It is safe for concurrent
// use within a process; cross-process safety comes from file locking.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a session store rooted at the project directory.
func NewStore(projectRoot string) (*Store, error) {
	dir := filepath.Join(projectRoot, sessionDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create session directory")
	}
	return &Store{dir: dir}, nil
}

// Path returns the location of the plan file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, planFile)
}

// Load reads the stored plan. Returns ErrNoPlan when none exists.
func (s *Store) Load() (*planner.LoadPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrNoPlan
	}

	data, err := lockedfile.Read(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read plan file")
	}

	var plan planner.LoadPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal plan file")
	}
	return &plan, nil
}

// Save writes the plan, replacing whatever is stored. A plan older than
// the one on disk is rejected: it means another invocation advanced the
// session since this plan was loaded.
func (s *Store) Save(plan *planner.LoadPlan) error {
	if plan == nil {
		return errors.New("cannot save a nil plan")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return lockedfile.Transform(s.Path(), func(data []byte) ([]byte, error) {
		if len(data) > 0 {
			var existing planner.LoadPlan
			if err := json.Unmarshal(data, &existing); err == nil && existing.Version > plan.Version {
				return nil, errors.Errorf("plan version %d is stale: version %d is already stored",
					plan.Version, existing.Version)
			}
		}
		return json.MarshalIndent(plan, "", "  ")
	})
}

// Update applies a mutation to the stored plan under the file lock: load,
// transform, store as one atomic step. The mutation receives nil when no
// plan exists yet and its result is what gets persisted. Returning a nil
// plan from the mutation aborts with an error.
func (s *Store) Update(fn func(*planner.LoadPlan) (*planner.LoadPlan, error)) (*planner.LoadPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *planner.LoadPlan
	err := lockedfile.Transform(s.Path(), func(data []byte) ([]byte, error) {
		var current *planner.LoadPlan
		if len(data) > 0 {
			current = &planner.LoadPlan{}
			if err := json.Unmarshal(data, current); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal plan file")
			}
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, errors.New("plan update produced no plan")
		}

		updated = next
		return json.MarshalIndent(next, "", "  ")
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Clear removes the stored plan. Clearing a project without one is a
// no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path())
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove plan file")
	}
	return nil
}
