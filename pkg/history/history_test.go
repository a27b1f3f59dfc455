package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/planner"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testPlan() *planner.LoadPlan {
	return &planner.LoadPlan{
		Version:   1,
		Budget:    31740,
		Mode:      planner.ModeRelaxed,
		Framework: "nestjs",
		Selected: []planner.Selection{
			{ArtifactID: "core-conventions", Cost: 14140, Tier: 1},
			{ArtifactID: "nestjs", Cost: 5960, Tier: 2},
		},
		TotalCost: 20100,
		Advisories: []planner.Advisory{
			{ArtifactID: "api-design", Cost: 4600, Reason: planner.ReasonOverBudget, Message: "does not fit"},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := NewRun("plan", "/work/api", testPlan())
	require.NoError(t, store.Record(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan", got.Command)
	assert.Equal(t, "/work/api", got.Project)
	assert.Equal(t, "nestjs", got.Framework)
	assert.Equal(t, "relaxed", got.Mode)
	assert.Equal(t, 31740, got.Budget)
	assert.Equal(t, 20100, got.TotalCost)
	assert.Equal(t, []string{"core-conventions", "nestjs"}, got.Selected)
	require.Len(t, got.Advisories, 1)
	assert.Equal(t, planner.ReasonOverBudget, got.Advisories[0].Reason)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, 5*time.Second)
}

func TestRecord_WithTargets(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	results := map[string]*install.TargetResult{
		"claude": {Target: "claude", Written: []string{"a", "b"}, Unchanged: []string{"c"}},
		"copilot": {
			Target: "copilot",
			Err:    &install.InstallError{Target: "copilot", Err: assert.AnError},
		},
	}
	run := NewRun("apply", "/work/api", testPlan()).WithTargets(results)
	require.NoError(t, store.Record(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Targets, 2)
	assert.Equal(t, 2, got.Targets["claude"].Written)
	assert.Equal(t, 1, got.Targets["claude"].Unchanged)
	assert.Empty(t, got.Targets["claude"].Error)
	assert.Contains(t, got.Targets["copilot"].Error, "copilot")
}

func TestRecord_Validation(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.Error(t, store.Record(ctx, nil))
	require.Error(t, store.Record(ctx, &Run{}))
}

func TestList_NewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := NewRun("plan", "/work/api", testPlan())
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Record(ctx, run))
	}

	runs, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))
	assert.True(t, runs[1].CreatedAt.After(runs[2].CreatedAt))
}

func TestList_Filters(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, NewRun("plan", "/work/api", testPlan())))
	require.NoError(t, store.Record(ctx, NewRun("apply", "/work/api", testPlan())))
	require.NoError(t, store.Record(ctx, NewRun("plan", "/work/web", testPlan())))

	runs, err := store.List(ctx, ListOptions{Project: "/work/api"})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = store.List(ctx, ListOptions{Project: "/work/api", Command: "apply"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "apply", runs[0].Command)

	runs, err = store.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGet_Prefix(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := NewRun("plan", "/work/api", testPlan())
	run.ID = "aaaa1111-0000-0000-0000-000000000000"
	require.NoError(t, store.Record(ctx, run))

	other := NewRun("plan", "/work/api", testPlan())
	other.ID = "bbbb2222-0000-0000-0000-000000000000"
	require.NoError(t, store.Record(ctx, other))

	got, err := store.Get(ctx, "aaaa")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	_, err = store.Get(ctx, "cccc")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestGet_AmbiguousPrefix(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"abc1", "abc2"} {
		run := NewRun("plan", "/work/api", testPlan())
		run.ID = id
		require.NoError(t, store.Record(ctx, run))
	}

	_, err := store.Get(ctx, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	// An exact id wins even when it prefixes another.
	run := NewRun("plan", "/work/api", testPlan())
	run.ID = "abc"
	require.NoError(t, store.Record(ctx, run))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
}
