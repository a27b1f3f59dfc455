package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/logger"
)

// Selector resolves plans against one catalog. It is stateless between
// calls: every operation takes the plan it acts on and returns a new one.
type Selector struct {
	catalog *catalog.Catalog
	mode    Mode
}

// NewSelector creates a selector over a validated catalog.
func NewSelector(c *catalog.Catalog, mode Mode) *Selector {
	return &Selector{catalog: c, mode: mode}
}

// Initialize resolves the base plan for a budget: the mandatory artifacts
// first, then the detected framework artifact, then a single sweep over
// the auto-loadable tiers in catalog order. Artifacts that do not fit are
// skipped and never retried within the sweep, so the result is
// deterministic for identical inputs.
//
// If the mandatory artifacts alone exceed the budget no plan exists and
// Initialize fails with a BudgetDeficitError naming them and the exact
// shortfall.
func (s *Selector) Initialize(ctx context.Context, framework string, budget int) (*LoadPlan, error) {
	if budget <= 0 {
		return nil, errors.Errorf("budget must be positive, got %d", budget)
	}

	log := logger.G(ctx).WithField("budget", budget).WithField("framework", framework)

	mandatory := s.catalog.Mandatory()
	required := 0
	mandatorySelections := make([]Selection, 0, len(mandatory))
	for _, a := range mandatory {
		required += a.Cost
		mandatorySelections = append(mandatorySelections, Selection{ArtifactID: a.ID, Cost: a.Cost, Tier: a.Tier})
	}
	if required > budget {
		return nil, &BudgetDeficitError{Budget: budget, Required: required, Artifacts: mandatorySelections}
	}

	now := time.Now().UTC()
	plan := &LoadPlan{
		Version:   1,
		Budget:    budget,
		Mode:      s.mode,
		Framework: framework,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, sel := range mandatorySelections {
		plan.add(sel)
	}

	if fw, ok := s.catalog.ForFramework(framework); ok {
		if plan.fits(fw.Cost) {
			plan.add(Selection{ArtifactID: fw.ID, Cost: fw.Cost, Tier: fw.Tier})
		} else {
			plan.Advisories = append(plan.Advisories, overBudgetAdvisory(plan, fw.ID, fw.Cost))
			log.WithField("artifact", fw.ID).Debug("framework artifact does not fit the budget")
		}
	}

	for tier := catalog.MinTier + 1; tier < catalog.MaxTier; tier++ {
		for _, a := range s.catalog.Artifacts() {
			if a.Tier != tier || !a.AutoLoadable() || plan.Contains(a.ID) {
				continue
			}
			if plan.fits(a.Cost) {
				plan.add(Selection{ArtifactID: a.ID, Cost: a.Cost, Tier: a.Tier})
			} else {
				log.WithField("artifact", a.ID).WithField("cost", a.Cost).
					WithField("remaining", plan.Remaining()).Debug("skipping artifact over budget")
			}
		}
	}

	log.WithField("selected", len(plan.Selected)).WithField("total_cost", plan.TotalCost).
		Debug("plan initialized")
	return plan, nil
}

// Extend resolves extension candidates into a new plan. Candidates are
// processed in ascending id order so the outcome does not depend on how
// the caller assembled them. Already-selected candidates are no-ops;
// unknown ids and candidates that cannot be placed become advisories. The
// plan version bumps only when the selection actually changes.
func (s *Selector) Extend(ctx context.Context, plan *LoadPlan, candidates []string) (*LoadPlan, error) {
	if plan == nil {
		return nil, errors.New("cannot extend a nil plan")
	}

	log := logger.G(ctx)
	out := plan.clone()
	changed := false

	for _, id := range sortedUnique(candidates) {
		if out.Contains(id) {
			continue
		}

		artifact, ok := s.catalog.Get(id)
		if !ok {
			out.Advisories = append(out.Advisories, Advisory{
				ArtifactID: id,
				Reason:     ReasonUnknownArtifact,
				Message:    fmt.Sprintf("artifact %q is not in the catalog", id),
			})
			continue
		}

		if out.fits(artifact.Cost) {
			out.add(Selection{ArtifactID: artifact.ID, Cost: artifact.Cost, Tier: artifact.Tier})
			changed = true
			continue
		}

		if s.mode != ModeStrict {
			out.Advisories = append(out.Advisories, overBudgetAdvisory(out, artifact.ID, artifact.Cost))
			log.WithField("artifact", id).Debug("extension over budget, advisory recorded")
			continue
		}

		// Strict mode: free space by evicting low-priority selections.
		// Evictions stand even if the candidate still cannot be placed.
		if s.evictFor(ctx, out, artifact.ID, artifact.Cost) {
			changed = true
		}
		if out.fits(artifact.Cost) {
			out.add(Selection{ArtifactID: artifact.ID, Cost: artifact.Cost, Tier: artifact.Tier})
			changed = true
		} else {
			out.Advisories = append(out.Advisories, Advisory{
				ArtifactID: artifact.ID,
				Cost:       artifact.Cost,
				Reason:     ReasonNotEvictable,
				Message: fmt.Sprintf("cannot free enough budget for %s (%d): %d remaining, nothing left to evict",
					artifact.ID, artifact.Cost, out.Remaining()),
			})
			log.WithField("artifact", id).Debug("extension not placeable after evictions")
		}
	}

	if changed {
		out.Version++
		out.UpdatedAt = time.Now().UTC()
	}
	return out, nil
}

// evictFor removes evictable selections until the candidate fits or
// nothing eligible remains. Victims are chosen highest tier first and,
// within a tier, most recently selected first. Tiers below the eviction
// threshold are never touched. Returns whether anything was evicted.
func (s *Selector) evictFor(ctx context.Context, plan *LoadPlan, forID string, cost int) bool {
	log := logger.G(ctx)
	evicted := false

	for !plan.fits(cost) {
		idx := evictionVictim(plan)
		if idx < 0 {
			break
		}
		victim := plan.Selected[idx]
		plan.Selected = append(plan.Selected[:idx], plan.Selected[idx+1:]...)
		plan.TotalCost -= victim.Cost
		plan.Evictions = append(plan.Evictions, Eviction{
			ArtifactID: victim.ArtifactID,
			Tier:       victim.Tier,
			Cost:       victim.Cost,
			For:        forID,
		})
		evicted = true
		log.WithField("artifact", victim.ArtifactID).WithField("tier", victim.Tier).
			WithField("for", forID).Debug("evicted artifact under budget pressure")
	}
	return evicted
}

// evictionVictim picks the index of the next selection to evict: the
// highest evictable tier, breaking ties toward the most recent selection.
func evictionVictim(plan *LoadPlan) int {
	bestIdx := -1
	bestTier := 0
	for i := len(plan.Selected) - 1; i >= 0; i-- {
		sel := plan.Selected[i]
		if sel.Tier >= catalog.EvictionTier && sel.Tier > bestTier {
			bestTier = sel.Tier
			bestIdx = i
		}
	}
	return bestIdx
}

func overBudgetAdvisory(plan *LoadPlan, id string, cost int) Advisory {
	return Advisory{
		ArtifactID: id,
		Cost:       cost,
		Reason:     ReasonOverBudget,
		Message: fmt.Sprintf("%s (%d) does not fit: %d of %d remaining",
			id, cost, plan.Remaining(), plan.Budget),
	}
}
