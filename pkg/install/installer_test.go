package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/planner"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Artifact{
		{
			ID:       "base",
			Summary:  "Base conventions",
			Cost:     100,
			Tier:     1,
			Category: catalog.CategoryCore,
			Content:  "Always write tests.\n",
		},
		{
			ID:       "style",
			Summary:  "Style rules",
			Cost:     50,
			Tier:     2,
			Category: catalog.CategorySharedAlways,
			Content:  "Prefer small functions.\n",
		},
	})
	require.NoError(t, err)
	return c
}

func testPlan(t *testing.T, c *catalog.Catalog, budget int) *planner.LoadPlan {
	t.Helper()
	plan, err := planner.NewSelector(c, planner.ModeRelaxed).Initialize(context.Background(), "", budget)
	require.NoError(t, err)
	return plan
}

func TestApply_FreshInstall(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := testCatalog(t)
	root := t.TempDir()
	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)

	results, err := installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)
	require.Len(t, results, 4)

	for name, res := range results {
		require.NoError(t, res.Err, "target %s", name)
		assert.True(t, res.Changed(), "target %s", name)
	}

	skill, err := os.ReadFile(filepath.Join(root, ".claude", "skills", "base", "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, "---\nname: base\ndescription: \"Base conventions\"\n---\n\n"+
		"<!-- loadout:artifact:base -->\n\nAlways write tests.\n", string(skill))

	_, err = os.Stat(filepath.Join(root, ".claude", "skills", "style", "SKILL.md"))
	require.NoError(t, err)

	mdc, err := os.ReadFile(filepath.Join(root, ".cursor", "rules", "loadout.mdc"))
	require.NoError(t, err)
	assert.Contains(t, string(mdc), "alwaysApply: true")
	assert.Contains(t, string(mdc), managedHeader)
	assert.Contains(t, string(mdc), "<!-- loadout:artifact:base -->")
	assert.Contains(t, string(mdc), "<!-- loadout:artifact:style -->")
	assert.Contains(t, string(mdc), "Prefer small functions.")

	rules, err := os.ReadFile(filepath.Join(root, ".windsurfrules"))
	require.NoError(t, err)
	assert.True(t, len(rules) > 0)

	_, err = os.Stat(filepath.Join(root, ".github", "copilot-instructions.md"))
	require.NoError(t, err)
}

func TestApply_SecondRunWritesNothing(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()
	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)
	plan := testPlan(t, c, 200)

	_, err = installer.Apply(context.Background(), plan)
	require.NoError(t, err)

	results, err := installer.Apply(context.Background(), plan)
	require.NoError(t, err)

	for name, res := range results {
		require.NoError(t, res.Err, "target %s", name)
		assert.Empty(t, res.Written, "target %s", name)
		assert.Empty(t, res.Removed, "target %s", name)
		assert.NotEmpty(t, res.Unchanged, "target %s", name)
		assert.False(t, res.Changed(), "target %s", name)
	}

	// No staging leftovers either.
	entries, err := os.ReadDir(filepath.Join(root, ".claude", "skills"))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".stage-")
	}
}

func TestApply_BrokenTargetDoesNotStopSiblings(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()

	// A file where the copilot directory should be makes that target fail
	// regardless of the user the tests run as.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".github"), []byte("not a directory"), 0o644))

	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)

	results, err := installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)

	require.Error(t, results["copilot"].Err)
	var installErr *InstallError
	require.ErrorAs(t, results["copilot"].Err, &installErr)
	assert.Equal(t, "copilot", installErr.Target)

	require.NoError(t, results["claude"].Err)
	require.NoError(t, results["cursor"].Err)
	require.NoError(t, results["windsurf"].Err)

	_, err = os.Stat(filepath.Join(root, ".windsurfrules"))
	require.NoError(t, err, "sibling target still published")

	assert.False(t, AllFailed(results))
	assert.Equal(t, []string{"copilot"}, FailedTargets(results))
}

func TestApply_RemovesStaleManagedSkills(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()
	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)

	// A user-authored skill with no loadout marker must survive.
	userSkill := filepath.Join(root, ".claude", "skills", "my-notes")
	require.NoError(t, os.MkdirAll(userSkill, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userSkill, "SKILL.md"),
		[]byte("---\nname: my-notes\n---\n\nMine.\n"), 0o644))

	_, err = installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, ".claude", "skills", "style"))
	require.NoError(t, err)

	// The tighter plan drops the style artifact; its directory goes away.
	results, err := installer.Apply(context.Background(), testPlan(t, c, 120))
	require.NoError(t, err)
	require.NoError(t, results["claude"].Err)
	assert.Contains(t, results["claude"].Removed, filepath.Join(".claude", "skills", "style", "SKILL.md"))

	_, err = os.Stat(filepath.Join(root, ".claude", "skills", "style"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(userSkill, "SKILL.md"))
	require.NoError(t, err, "unmanaged skill left alone")
}

func TestApply_RefusesUnmanagedFile(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".windsurfrules"),
		[]byte("my own rules\n"), 0o644))

	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)

	results, err := installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)

	require.Error(t, results["windsurf"].Err)
	assert.Contains(t, results["windsurf"].Err.Error(), "unmanaged")

	content, err := os.ReadFile(filepath.Join(root, ".windsurfrules"))
	require.NoError(t, err)
	assert.Equal(t, "my own rules\n", string(content))

	require.NoError(t, results["claude"].Err)
}

func TestApply_UpdatesManagedFileInPlace(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()
	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)

	_, err = installer.Apply(context.Background(), testPlan(t, c, 120))
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(root, ".windsurfrules"))
	require.NoError(t, err)
	assert.NotContains(t, string(before), "loadout:artifact:style")

	results, err := installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)
	require.NoError(t, results["windsurf"].Err)
	assert.Contains(t, results["windsurf"].Written, ".windsurfrules")

	after, err := os.ReadFile(filepath.Join(root, ".windsurfrules"))
	require.NoError(t, err)
	assert.Contains(t, string(after), "loadout:artifact:style")
}

func TestApply_DryRunTouchesNothing(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()
	installer, err := NewInstaller(c, WithRoot(root), WithDryRun(true))
	require.NoError(t, err)

	results, err := installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)

	res := results["windsurf"]
	require.NoError(t, res.Err)
	assert.Contains(t, res.Written, ".windsurfrules")
	diff := res.Diffs[".windsurfrules"]
	assert.Contains(t, diff, "a/.windsurfrules")
	assert.Contains(t, diff, "b/.windsurfrules")
	assert.Contains(t, diff, "+Always write tests.")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry-run must not write")
}

func TestApply_SelectedTargetsOnly(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()

	profiles, err := ProfilesFor([]string{"windsurf"})
	require.NoError(t, err)
	installer, err := NewInstaller(c, WithRoot(root), WithProfiles(profiles))
	require.NoError(t, err)

	results, err := installer.Apply(context.Background(), testPlan(t, c, 200))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results["windsurf"].Err)

	_, err = os.Stat(filepath.Join(root, ".claude"))
	assert.True(t, os.IsNotExist(err))
}

func TestApply_CanceledContext(t *testing.T) {
	c := testCatalog(t)
	root := t.TempDir()
	installer, err := NewInstaller(c, WithRoot(root))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := installer.Apply(ctx, testPlan(t, c, 200))
	require.NoError(t, err)
	assert.True(t, AllFailed(results))
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestApply_NilPlan(t *testing.T) {
	installer, err := NewInstaller(testCatalog(t), WithRoot(t.TempDir()))
	require.NoError(t, err)

	_, err = installer.Apply(context.Background(), nil)
	require.Error(t, err)
}

func TestNewInstaller_Validation(t *testing.T) {
	_, err := NewInstaller(nil)
	require.Error(t, err)

	_, err = NewInstaller(testCatalog(t), WithProfiles(nil))
	require.Error(t, err)
}

func TestAllFailed_Empty(t *testing.T) {
	assert.False(t, AllFailed(map[string]*TargetResult{}))
}
