// Package trigger matches free-text hints against the trigger phrases of
// on-demand artifacts. Matching is a case-insensitive substring test, so
// hint wording only matters insofar as it contains a phrase: word order,
// punctuation, and surrounding text are irrelevant. Resolving what a match
// costs is the planner's job, not the matcher's.
package trigger

import (
	"sort"
	"strings"

	"github.com/loadout-sh/loadout/pkg/catalog"
)

// Match returns the ids of on-demand artifacts with at least one trigger
// phrase occurring in the text, sorted ascending. Artifacts sharing a
// phrase all match.
func Match(text string, c *catalog.Catalog) []string {
	folded := strings.ToLower(text)
	if strings.TrimSpace(folded) == "" {
		return nil
	}

	var ids []string
	for _, artifact := range c.OnDemand() {
		if phraseHit(folded, artifact.Triggers) != "" {
			ids = append(ids, artifact.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Explain returns, per matched artifact id, every trigger phrase found in
// the text. Used for verbose output so a user can see why an artifact was
// pulled in.
func Explain(text string, c *catalog.Catalog) map[string][]string {
	folded := strings.ToLower(text)
	if strings.TrimSpace(folded) == "" {
		return nil
	}

	out := make(map[string][]string)
	for _, artifact := range c.OnDemand() {
		for _, phrase := range artifact.Triggers {
			if phrase != "" && strings.Contains(folded, strings.ToLower(phrase)) {
				out[artifact.ID] = append(out[artifact.ID], phrase)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func phraseHit(foldedText string, phrases []string) string {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(foldedText, strings.ToLower(phrase)) {
			return phrase
		}
	}
	return ""
}
