package install

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// Layout describes how a target agent consumes reference docs.
type Layout string

const (
	// LayoutSkillTree writes one directory per artifact, each holding a
	// SKILL.md, under the profile directory.
	LayoutSkillTree Layout = "skill-tree"
	// LayoutRuleFile writes all artifacts into a single managed file.
	LayoutRuleFile Layout = "rule-file"
)

// TargetProfile describes one installable agent surface.
type TargetProfile struct {
	// Name is the agent identifier, matching detection results.
	Name string
	// Layout selects the on-disk shape.
	Layout Layout
	// Dir is the skill-tree root, relative to the repo root.
	Dir string
	// File is the rule file path, relative to the repo root.
	File string
	// Preamble is emitted verbatim at the top of a rule file, before the
	// managed header. Used for formats that require frontmatter.
	Preamble string
}

const cursorPreamble = `---
description: Managed reference docs selected by loadout
alwaysApply: true
---

`

// DefaultProfiles returns the built-in target profiles in a stable order.
func DefaultProfiles() []TargetProfile {
	return []TargetProfile{
		{
			Name:   "claude",
			Layout: LayoutSkillTree,
			Dir:    filepath.Join(".claude", "skills"),
		},
		{
			Name:     "cursor",
			Layout:   LayoutRuleFile,
			File:     filepath.Join(".cursor", "rules", "loadout.mdc"),
			Preamble: cursorPreamble,
		},
		{
			Name:   "windsurf",
			Layout: LayoutRuleFile,
			File:   ".windsurfrules",
		},
		{
			Name:   "copilot",
			Layout: LayoutRuleFile,
			File:   filepath.Join(".github", "copilot-instructions.md"),
		},
	}
}

// ProfileFor looks up a built-in profile by agent name.
func ProfileFor(name string) (TargetProfile, error) {
	for _, p := range DefaultProfiles() {
		if p.Name == name {
			return p, nil
		}
	}
	return TargetProfile{}, errors.Errorf("unknown install target %q", name)
}

// ProfileNames lists the built-in target names in profile order.
func ProfileNames() []string {
	profiles := DefaultProfiles()
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	return names
}

// ProfilesFor resolves a set of agent names to profiles, preserving the
// built-in profile order rather than the caller's. Unknown names fail.
func ProfilesFor(names []string) ([]TargetProfile, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := ProfileFor(name); err != nil {
			return nil, err
		}
		want[name] = true
	}

	var profiles []TargetProfile
	for _, p := range DefaultProfiles() {
		if want[p.Name] {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}
