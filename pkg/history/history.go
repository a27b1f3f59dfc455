// Package history records every plan, extend, and apply run in the shared
// SQLite database, so past selections and install outcomes can be audited
// per project.
package history

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/db"
	"github.com/loadout-sh/loadout/pkg/db/migrations"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/planner"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("run not found")

// TargetNote summarizes one install target's outcome for a run.
type TargetNote struct {
	Written   int    `json:"written"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	Error     string `json:"error,omitempty"`
}

// Run is one recorded invocation.
type Run struct {
	ID         string                `json:"id"`
	Command    string                `json:"command"`
	Project    string                `json:"project"`
	Framework  string                `json:"framework,omitempty"`
	Mode       string                `json:"mode"`
	Budget     int                   `json:"budget"`
	TotalCost  int                   `json:"totalCost"`
	Selected   []string              `json:"selected"`
	Advisories []planner.Advisory    `json:"advisories,omitempty"`
	Evictions  []planner.Eviction    `json:"evictions,omitempty"`
	Targets    map[string]TargetNote `json:"targets,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// NewRun builds a run record from a resolved plan.
func NewRun(command, project string, plan *planner.LoadPlan) *Run {
	run := &Run{
		ID:      uuid.NewString(),
		Command: command,
		Project: project,
	}
	if plan != nil {
		run.Framework = plan.Framework
		run.Mode = string(plan.Mode)
		run.Budget = plan.Budget
		run.TotalCost = plan.TotalCost
		run.Selected = plan.ArtifactIDs()
		run.Advisories = plan.Advisories
		run.Evictions = plan.Evictions
	}
	return run
}

// WithTargets attaches install outcomes to the run.
func (r *Run) WithTargets(results map[string]*install.TargetResult) *Run {
	if len(results) == 0 {
		return r
	}
	r.Targets = make(map[string]TargetNote, len(results))
	for name, res := range results {
		note := TargetNote{
			Written:   len(res.Written),
			Removed:   len(res.Removed),
			Unchanged: len(res.Unchanged),
		}
		if res.Err != nil {
			note.Error = res.Err.Error()
		}
		r.Targets[name] = note
	}
	return r
}

// ListOptions filters history queries.
type ListOptions struct {
	Project string
	Command string
	Limit   int
}

// Store persists runs in the shared storage database.
type Store struct {
	db *sqlx.DB
}

// NewStore opens the history store and applies pending migrations.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	database, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	runner := db.NewMigrationRunner(database)
	if err := runner.Run(ctx, migrations.All()); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return &Store{db: database}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a run. Missing id and timestamp are filled in.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("cannot record a nil run")
	}
	if run.Command == "" {
		return errors.New("run command cannot be empty")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO runs (
			id, command, project, framework, mode, budget, total_cost,
			selected, advisories, evictions, targets, created_at
		) VALUES (
			:id, :command, :project, :framework, :mode, :budget, :total_cost,
			:selected, :advisories, :evictions, :targets, :created_at
		)
	`
	_, err := s.db.NamedExecContext(ctx, query, fromRun(*run))
	return errors.Wrap(err, "failed to record run")
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		conditions []string
		args       []any
	)
	if opts.Project != "" {
		conditions = append(conditions, "project = ?")
		args = append(args, opts.Project)
	}
	if opts.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, opts.Command)
	}

	query := `SELECT id, command, project, framework, mode, budget, total_cost,
		selected, advisories, evictions, targets, created_at FROM runs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	var dbRuns []dbRun
	if err := s.db.SelectContext(ctx, &dbRuns, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}

	runs := make([]Run, 0, len(dbRuns))
	for i := range dbRuns {
		runs = append(runs, dbRuns[i].toRun())
	}
	return runs, nil
}

// Get returns one run by id. Unique id prefixes are accepted.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, errors.New("run id cannot be empty")
	}

	const columns = `id, command, project, framework, mode, budget, total_cost,
		selected, advisories, evictions, targets, created_at`

	var exact dbRun
	err := s.db.GetContext(ctx, &exact, "SELECT "+columns+" FROM runs WHERE id = ?", id)
	if err == nil {
		run := exact.toRun()
		return &run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to load run")
	}

	var dbRuns []dbRun
	if err := s.db.SelectContext(ctx, &dbRuns, "SELECT "+columns+" FROM runs WHERE id LIKE ?", id+"%"); err != nil {
		return nil, errors.Wrap(err, "failed to load run")
	}

	switch len(dbRuns) {
	case 0:
		return nil, errors.Wrapf(ErrRunNotFound, "id %q", id)
	case 1:
		run := dbRuns[0].toRun()
		return &run, nil
	default:
		return nil, errors.Errorf("run id %q is ambiguous: %d matches", id, len(dbRuns))
	}
}
