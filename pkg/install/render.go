package install

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/planner"
)

// managedHeader marks a rule file as generated. Files without it are
// never overwritten or removed.
const managedHeader = "<!-- managed by loadout; do not edit by hand -->"

const markerPrefix = "<!-- loadout:artifact:"

func artifactMarker(id string) string {
	return markerPrefix + id + " -->"
}

// managedArtifactID extracts the artifact id from a managed document, so
// stale skill directories can be told apart from user-authored ones.
func managedArtifactID(content string) (string, bool) {
	idx := strings.Index(content, markerPrefix)
	if idx < 0 {
		return "", false
	}
	rest := content[idx+len(markerPrefix):]
	end := strings.Index(rest, " -->")
	if end < 0 {
		return "", false
	}
	id := strings.TrimSpace(rest[:end])
	if id == "" {
		return "", false
	}
	return id, true
}

// desiredState computes the files a target should contain for a plan,
// keyed by path relative to the repo root. It touches no I/O: the
// installer diffs this against what is on disk.
func desiredState(plan *planner.LoadPlan, c *catalog.Catalog, profile TargetProfile) (map[string]string, error) {
	artifacts := make([]catalog.Artifact, 0, len(plan.Selected))
	for _, sel := range plan.Selected {
		a, ok := c.Get(sel.ArtifactID)
		if !ok {
			return nil, errors.Errorf("plan references artifact %q which is not in the catalog", sel.ArtifactID)
		}
		artifacts = append(artifacts, a)
	}

	switch profile.Layout {
	case LayoutSkillTree:
		files := make(map[string]string, len(artifacts))
		for _, a := range artifacts {
			files[filepath.Join(profile.Dir, a.ID, "SKILL.md")] = renderSkill(a)
		}
		return files, nil
	case LayoutRuleFile:
		return map[string]string{profile.File: renderRuleFile(artifacts, profile)}, nil
	default:
		return nil, errors.Errorf("profile %q has unknown layout %q", profile.Name, profile.Layout)
	}
}

// renderSkill regenerates a SKILL.md from catalog content. Frontmatter is
// reduced to what skill consumers read; costs, tiers and triggers stay in
// the catalog.
func renderSkill(a catalog.Artifact) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "name: %s\n", a.ID)
	if a.Summary != "" {
		fmt.Fprintf(&sb, "description: %q\n", a.Summary)
	}
	sb.WriteString("---\n\n")
	sb.WriteString(artifactMarker(a.ID))
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimRight(a.Content, "\n"))
	sb.WriteString("\n")
	return sb.String()
}

func renderRuleFile(artifacts []catalog.Artifact, profile TargetProfile) string {
	var sb strings.Builder
	sb.WriteString(profile.Preamble)
	sb.WriteString(managedHeader)
	sb.WriteString("\n")
	for _, a := range artifacts {
		sb.WriteString("\n")
		sb.WriteString(artifactMarker(a.ID))
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimRight(a.Content, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}
