package install

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/planner"
)

func TestDesiredState_SkillTree(t *testing.T) {
	c := testCatalog(t)
	plan := testPlan(t, c, 200)
	profile, err := ProfileFor("claude")
	require.NoError(t, err)

	files, err := desiredState(plan, c, profile)
	require.NoError(t, err)
	require.Len(t, files, 2)

	skill := files[".claude/skills/base/SKILL.md"]
	assert.Contains(t, skill, "name: base")
	assert.Contains(t, skill, `description: "Base conventions"`)
	assert.Contains(t, skill, artifactMarker("base"))
	assert.Contains(t, skill, "Always write tests.")
}

func TestDesiredState_RuleFileKeepsSelectionOrder(t *testing.T) {
	c := testCatalog(t)
	plan := testPlan(t, c, 200)
	profile, err := ProfileFor("windsurf")
	require.NoError(t, err)

	files, err := desiredState(plan, c, profile)
	require.NoError(t, err)
	content := files[".windsurfrules"]

	first := strings.Index(content, artifactMarker("base"))
	second := strings.Index(content, artifactMarker("style"))
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second, "artifacts render in selection order")
}

func TestDesiredState_UnknownPlanArtifact(t *testing.T) {
	c := testCatalog(t)
	plan := &planner.LoadPlan{
		Selected: []planner.Selection{{ArtifactID: "ghost", Cost: 1, Tier: 1}},
	}
	profile, err := ProfileFor("windsurf")
	require.NoError(t, err)

	_, err = desiredState(plan, c, profile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestManagedArtifactID(t *testing.T) {
	id, ok := managedArtifactID(renderSkill(catalog.Artifact{ID: "base", Content: "x"}))
	require.True(t, ok)
	assert.Equal(t, "base", id)

	_, ok = managedArtifactID("---\nname: mine\n---\n\nMy own skill.\n")
	assert.False(t, ok)

	_, ok = managedArtifactID("<!-- loadout:artifact: -->")
	assert.False(t, ok)
}

func TestIsManaged(t *testing.T) {
	assert.True(t, isManaged(managedHeader+"\nsomething"))
	assert.True(t, isManaged(artifactMarker("base")))
	assert.False(t, isManaged("# My rules\n"))
}

func TestProfileFor(t *testing.T) {
	profile, err := ProfileFor("cursor")
	require.NoError(t, err)
	assert.Equal(t, LayoutRuleFile, profile.Layout)
	assert.Contains(t, profile.Preamble, "alwaysApply")

	_, err = ProfileFor("zed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zed")
}

func TestProfilesFor_PreservesBuiltinOrder(t *testing.T) {
	profiles, err := ProfilesFor([]string{"copilot", "claude"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "claude", profiles[0].Name)
	assert.Equal(t, "copilot", profiles[1].Name)

	_, err = ProfilesFor([]string{"claude", "zed"})
	require.Error(t, err)
}

func TestProfileNames(t *testing.T) {
	assert.Equal(t, []string{"claude", "cursor", "windsurf", "copilot"}, ProfileNames())
}
