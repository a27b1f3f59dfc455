// Package planner resolves load plans: budget-respecting, deterministic
// selections of catalog artifacts. A plan never exceeds its budget at any
// observable point; pressure shows up as skips, advisories, or (in strict
// mode) evictions instead.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mode controls how the planner behaves when an extension does not fit.
type Mode string

const (
	// ModeRelaxed records an advisory and leaves the plan untouched.
	ModeRelaxed Mode = "relaxed"
	// ModeStrict evicts low-tier selections to make room.
	ModeStrict Mode = "strict"
)

// ParseMode validates a mode flag value.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeRelaxed, ModeStrict:
		return Mode(value), nil
	case "":
		return ModeRelaxed, nil
	default:
		return "", errors.Errorf("unknown mode %q: expected %q or %q", value, ModeRelaxed, ModeStrict)
	}
}

// Advisory reasons.
const (
	// ReasonOverBudget marks a candidate that did not fit in relaxed mode.
	ReasonOverBudget = "over-budget"
	// ReasonNotEvictable marks a strict-mode candidate that still did not
	// fit after every eligible eviction.
	ReasonNotEvictable = "not-evictable"
	// ReasonUnknownArtifact marks a candidate id the catalog does not carry.
	ReasonUnknownArtifact = "unknown-artifact"
)

// Advisory is a non-fatal note: the plan stands, the candidate was not
// added, and this records why.
type Advisory struct {
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Cost       int    `json:"cost,omitempty" yaml:"cost,omitempty"`
	Reason     string `json:"reason" yaml:"reason"`
	Message    string `json:"message" yaml:"message"`
}

// Eviction records an artifact removed under strict budget pressure and
// the candidate that forced it. Evictions are permanent for the plan
// version that made them; the artifact may return through a later extend.
type Eviction struct {
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Tier       int    `json:"tier" yaml:"tier"`
	Cost       int    `json:"cost" yaml:"cost"`
	For        string `json:"for" yaml:"for"`
}

// Selection is one selected artifact with the fields budget arithmetic and
// eviction ordering need. Slice order is selection order.
type Selection struct {
	ArtifactID string `json:"artifactId" yaml:"artifactId"`
	Cost       int    `json:"cost" yaml:"cost"`
	Tier       int    `json:"tier" yaml:"tier"`
}

// LoadPlan is a resolved selection. It serializes to JSON for the session
// file, history rows, and machine-readable command output.
type LoadPlan struct {
	Version    int         `json:"version" yaml:"version"`
	Budget     int         `json:"budget" yaml:"budget"`
	Mode       Mode        `json:"mode" yaml:"mode"`
	Framework  string      `json:"framework,omitempty" yaml:"framework,omitempty"`
	Selected   []Selection `json:"selected" yaml:"selected"`
	TotalCost  int         `json:"totalCost" yaml:"totalCost"`
	Advisories []Advisory  `json:"advisories,omitempty" yaml:"advisories,omitempty"`
	Evictions  []Eviction  `json:"evictions,omitempty" yaml:"evictions,omitempty"`
	CreatedAt  time.Time   `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt" yaml:"updatedAt"`
}

// Contains reports whether the artifact is currently selected.
func (p *LoadPlan) Contains(id string) bool {
	for _, sel := range p.Selected {
		if sel.ArtifactID == id {
			return true
		}
	}
	return false
}

// ArtifactIDs returns the selected artifact ids in selection order.
func (p *LoadPlan) ArtifactIDs() []string {
	ids := make([]string, 0, len(p.Selected))
	for _, sel := range p.Selected {
		ids = append(ids, sel.ArtifactID)
	}
	return ids
}

// Remaining returns the unspent budget.
func (p *LoadPlan) Remaining() int {
	return p.Budget - p.TotalCost
}

func (p *LoadPlan) fits(cost int) bool {
	return p.TotalCost+cost <= p.Budget
}

func (p *LoadPlan) add(sel Selection) {
	p.Selected = append(p.Selected, sel)
	p.TotalCost += sel.Cost
}

// clone deep-copies a plan so extensions never mutate their input.
func (p *LoadPlan) clone() *LoadPlan {
	out := *p
	out.Selected = append([]Selection(nil), p.Selected...)
	out.Advisories = append([]Advisory(nil), p.Advisories...)
	out.Evictions = append([]Eviction(nil), p.Evictions...)
	return &out
}

// BudgetDeficitError is fatal: the mandatory artifacts alone exceed the
// budget, so no valid plan exists at this budget.
type BudgetDeficitError struct {
	Budget    int
	Required  int
	Artifacts []Selection
}

// Deficit returns how many tokens the budget is short by.
func (e *BudgetDeficitError) Deficit() int {
	return e.Required - e.Budget
}

// Error implements the error interface.
func (e *BudgetDeficitError) Error() string {
	parts := make([]string, 0, len(e.Artifacts))
	for _, sel := range e.Artifacts {
		parts = append(parts, fmt.Sprintf("%s: %d", sel.ArtifactID, sel.Cost))
	}
	return fmt.Sprintf("mandatory artifacts require %d tokens but the budget is %d, short by %d (%s)",
		e.Required, e.Budget, e.Deficit(), strings.Join(parts, ", "))
}

func sortedUnique(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	unique := out[:0]
	var prev string
	for i, id := range out {
		if i == 0 || id != prev {
			unique = append(unique, id)
		}
		prev = id
	}
	return unique
}
