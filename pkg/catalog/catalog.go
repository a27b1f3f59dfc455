// Package catalog defines the artifact catalog: the immutable registry of
// reference documents that plans are resolved against. A catalog is built
// once per process from the builtin embedded documents plus any user
// catalog directories, validated, and then only read.
package catalog

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Category classifies how an artifact participates in plan resolution.
type Category string

const (
	// CategoryCore artifacts are mandatory and always selected.
	CategoryCore Category = "core"
	// CategoryFramework artifacts apply only when their framework is detected.
	CategoryFramework Category = "framework"
	// CategorySharedAlways artifacts are auto-selected whenever they fit the budget.
	CategorySharedAlways Category = "shared-always"
	// CategoryOnDemand artifacts are selected only through trigger matching.
	CategoryOnDemand Category = "on-demand"
)

// MinTier and MaxTier bound the valid artifact tiers. Tier 1 is mandatory
// material; tier 6 is install-time-only and never auto-selected.
const (
	MinTier = 1
	MaxTier = 6
)

// EvictionTier is the lowest tier eligible for strict-mode eviction.
// Artifacts below it are never removed once selected.
const EvictionTier = 5

// Artifact is a single reference document with its selection metadata.
// The Cost is the token price of installing the artifact into an agent's
// context; it is declared in the document frontmatter, not derived.
type Artifact struct {
	ID        string   `json:"id" yaml:"id"`
	Summary   string   `json:"summary" yaml:"summary"`
	Cost      int      `json:"cost" yaml:"cost"`
	Tier      int      `json:"tier" yaml:"tier"`
	Category  Category `json:"category" yaml:"category"`
	Framework string   `json:"framework,omitempty" yaml:"framework,omitempty"`
	Triggers  []string `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Content   string   `json:"-" yaml:"-"`
	Source    string   `json:"-" yaml:"-"`
}

// Mandatory reports whether the artifact must be present in every plan.
func (a Artifact) Mandatory() bool {
	return a.Tier == MinTier || a.Category == CategoryCore
}

// AutoLoadable reports whether the artifact participates in the automatic
// tier sweep during plan initialization. Framework artifacts join through
// detection and on-demand artifacts through trigger extension instead.
func (a Artifact) AutoLoadable() bool {
	return (a.Category == CategoryCore || a.Category == CategorySharedAlways) && a.Tier < MaxTier
}

// Evictable reports whether the artifact may be removed from a plan under
// strict budget pressure.
func (a Artifact) Evictable() bool {
	return a.Tier >= EvictionTier
}

// CatalogError describes a single invalid artifact declaration. Catalog
// validation aggregates one per issue so a broken catalog is reported in
// full rather than one field at a time.
type CatalogError struct {
	ArtifactID string
	Reason     string
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	if e.ArtifactID == "" {
		return fmt.Sprintf("invalid catalog: %s", e.Reason)
	}
	return fmt.Sprintf("invalid artifact %q: %s", e.ArtifactID, e.Reason)
}

// Catalog is an ordered, validated collection of artifacts. Declaration
// order is significant: the selector walks it when filling a budget and
// ties between framework rules resolve by position.
type Catalog struct {
	artifacts []Artifact
	index     map[string]int
}

// New builds a catalog from artifacts in declaration order, failing with
// the aggregated validation errors if any declaration is invalid.
func New(artifacts []Artifact) (*Catalog, error) {
	if err := Validate(artifacts); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(artifacts))
	for i, a := range artifacts {
		index[a.ID] = i
	}

	return &Catalog{
		artifacts: append([]Artifact(nil), artifacts...),
		index:     index,
	}, nil
}

// Validate checks every artifact declaration and returns all issues found
// as a multierror of CatalogError values.
func Validate(artifacts []Artifact) error {
	var result *multierror.Error
	seen := make(map[string]bool, len(artifacts))

	for _, a := range artifacts {
		if a.ID == "" {
			result = multierror.Append(result, &CatalogError{Reason: "artifact id is required"})
			continue
		}
		if seen[a.ID] {
			result = multierror.Append(result, &CatalogError{ArtifactID: a.ID, Reason: "duplicate artifact id"})
		}
		seen[a.ID] = true

		if a.Cost <= 0 {
			result = multierror.Append(result, &CatalogError{ArtifactID: a.ID, Reason: fmt.Sprintf("cost must be positive, got %d", a.Cost)})
		}
		if a.Tier < MinTier || a.Tier > MaxTier {
			result = multierror.Append(result, &CatalogError{ArtifactID: a.ID, Reason: fmt.Sprintf("tier must be between %d and %d, got %d", MinTier, MaxTier, a.Tier)})
		}
		switch a.Category {
		case CategoryCore, CategoryFramework, CategorySharedAlways, CategoryOnDemand:
		default:
			result = multierror.Append(result, &CatalogError{ArtifactID: a.ID, Reason: fmt.Sprintf("unknown category %q", a.Category)})
		}
		if a.Category == CategoryFramework && a.Framework == "" {
			result = multierror.Append(result, &CatalogError{ArtifactID: a.ID, Reason: "framework artifacts must declare a framework"})
		}
		if a.Content == "" {
			result = multierror.Append(result, &CatalogError{ArtifactID: a.ID, Reason: "artifact content is empty"})
		}
	}

	return result.ErrorOrNil()
}

// Artifacts returns the artifacts in declaration order.
func (c *Catalog) Artifacts() []Artifact {
	return append([]Artifact(nil), c.artifacts...)
}

// Len returns the number of artifacts in the catalog.
func (c *Catalog) Len() int {
	return len(c.artifacts)
}

// Get returns the artifact with the given id.
func (c *Catalog) Get(id string) (Artifact, bool) {
	i, ok := c.index[id]
	if !ok {
		return Artifact{}, false
	}
	return c.artifacts[i], true
}

// Position returns the declaration position of an artifact id, used to
// order selections deterministically.
func (c *Catalog) Position(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// Mandatory returns the artifacts every plan must contain, in declaration
// order.
func (c *Catalog) Mandatory() []Artifact {
	var out []Artifact
	for _, a := range c.artifacts {
		if a.Mandatory() {
			out = append(out, a)
		}
	}
	return out
}

// ForFramework returns the artifact bound to the given framework, if any.
func (c *Catalog) ForFramework(framework string) (Artifact, bool) {
	if framework == "" {
		return Artifact{}, false
	}
	for _, a := range c.artifacts {
		if a.Category == CategoryFramework && a.Framework == framework {
			return a, true
		}
	}
	return Artifact{}, false
}

// Frameworks returns the framework names the catalog carries artifacts
// for, in declaration order.
func (c *Catalog) Frameworks() []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range c.artifacts {
		if a.Category == CategoryFramework && !seen[a.Framework] {
			seen[a.Framework] = true
			out = append(out, a.Framework)
		}
	}
	return out
}

// OnDemand returns the trigger-driven artifacts in declaration order.
func (c *Catalog) OnDemand() []Artifact {
	var out []Artifact
	for _, a := range c.artifacts {
		if a.Category == CategoryOnDemand {
			out = append(out, a)
		}
	}
	return out
}
