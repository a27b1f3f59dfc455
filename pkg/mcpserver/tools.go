package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/logger"
	"github.com/loadout-sh/loadout/pkg/planner"
	"github.com/loadout-sh/loadout/pkg/session"
	"github.com/loadout-sh/loadout/pkg/trigger"
)

// StatusInput is empty: the status tool takes no arguments.
type StatusInput struct{}

// RequestDocsInput carries the free-text hint for loadout_request_docs.
type RequestDocsInput struct {
	Hint string `json:"hint" jsonschema:"Task description, topic, or error text to match against documentation triggers"`
}

// ListDocsInput optionally narrows loadout_list_docs to one category.
type ListDocsInput struct {
	Category string `json:"category,omitempty" jsonschema:"Optional category filter: core, framework, shared-always, or on-demand"`
}

type planStatus struct {
	Version    int                `json:"version"`
	Mode       string             `json:"mode"`
	Framework  string             `json:"framework,omitempty"`
	Budget     int                `json:"budget"`
	TotalCost  int                `json:"totalCost"`
	Remaining  int                `json:"remaining"`
	Selected   []string           `json:"selected"`
	Advisories []planner.Advisory `json:"advisories,omitempty"`
}

type statusResult struct {
	HasPlan bool        `json:"hasPlan"`
	Message string      `json:"message,omitempty"`
	Plan    *planStatus `json:"plan,omitempty"`
}

type docEntry struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary,omitempty"`
	Cost     int      `json:"cost"`
	Tier     int      `json:"tier"`
	Category string   `json:"category"`
	Triggers []string `json:"triggers,omitempty"`
	Loaded   bool     `json:"loaded"`
}

type requestDocsResult struct {
	Matched     []string           `json:"matched"`
	Added       []string           `json:"added"`
	PlanVersion int                `json:"planVersion,omitempty"`
	TotalCost   int                `json:"totalCost,omitempty"`
	Remaining   int                `json:"remaining,omitempty"`
	Advisories  []planner.Advisory `json:"advisories,omitempty"`
	Evictions   []planner.Eviction `json:"evictions,omitempty"`
	Installed   []string           `json:"installed,omitempty"`
	Failed      []string           `json:"failed,omitempty"`
	Message     string             `json:"message,omitempty"`
}

func (s *Server) registerStatus() error {
	schema, err := jsonschema.For[StatusInput](nil)
	if err != nil {
		return errors.Wrap(err, "building status schema")
	}

	tool := &mcp.Tool{
		Name:        "loadout_status",
		Description: "Report the current documentation load plan for this project: budget, token usage, selected artifacts, framework, and advisories.",
		InputSchema: schema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in StatusInput) (*mcp.CallToolResult, any, error) {
		plan, err := s.sessions.Load()
		if errors.Is(err, session.ErrNoPlan) {
			return jsonResult(statusResult{
				Message: "no plan for this project; run `loadout plan` first",
			})
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading plan")
		}

		return jsonResult(statusResult{
			HasPlan: true,
			Plan: &planStatus{
				Version:    plan.Version,
				Mode:       string(plan.Mode),
				Framework:  plan.Framework,
				Budget:     plan.Budget,
				TotalCost:  plan.TotalCost,
				Remaining:  plan.Remaining(),
				Selected:   plan.ArtifactIDs(),
				Advisories: plan.Advisories,
			},
		})
	})
	return nil
}

func (s *Server) registerListDocs() error {
	schema, err := jsonschema.For[ListDocsInput](nil)
	if err != nil {
		return errors.Wrap(err, "building list schema")
	}

	tool := &mcp.Tool{
		Name:        "loadout_list_docs",
		Description: "List the documentation artifacts in the catalog with token costs, tiers, and trigger phrases. Use it to see what loadout_request_docs can load.",
		InputSchema: schema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in ListDocsInput) (*mcp.CallToolResult, any, error) {
		want := catalog.Category(in.Category)
		switch want {
		case "", catalog.CategoryCore, catalog.CategoryFramework, catalog.CategorySharedAlways, catalog.CategoryOnDemand:
		default:
			return errorResult("unknown category %q: valid categories are core, framework, shared-always, on-demand", in.Category)
		}

		plan, err := s.sessions.Load()
		if err != nil && !errors.Is(err, session.ErrNoPlan) {
			return nil, nil, errors.Wrap(err, "loading plan")
		}

		entries := make([]docEntry, 0, s.catalog.Len())
		for _, a := range s.catalog.Artifacts() {
			if want != "" && a.Category != want {
				continue
			}
			entries = append(entries, docEntry{
				ID:       a.ID,
				Summary:  a.Summary,
				Cost:     a.Cost,
				Tier:     a.Tier,
				Category: string(a.Category),
				Triggers: a.Triggers,
				Loaded:   plan != nil && plan.Contains(a.ID),
			})
		}
		return jsonResult(entries)
	})
	return nil
}

func (s *Server) registerRequestDocs() error {
	schema, err := jsonschema.For[RequestDocsInput](nil)
	if err != nil {
		return errors.Wrap(err, "building request schema")
	}

	tool := &mcp.Tool{
		Name:        "loadout_request_docs",
		Description: "Load extra reference documentation for the current task. Describe the task or paste the error text; matching artifacts are added to the plan within budget and installed for the host agents.",
		InputSchema: schema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in RequestDocsInput) (*mcp.CallToolResult, any, error) {
		hint := strings.TrimSpace(in.Hint)
		if hint == "" {
			return errorResult("hint must not be empty")
		}

		matched := trigger.Match(hint, s.catalog)
		if len(matched) == 0 {
			return jsonResult(requestDocsResult{
				Matched: []string{},
				Added:   []string{},
				Message: "no documentation matched the hint; the plan is unchanged",
			})
		}

		if _, err := s.sessions.Load(); errors.Is(err, session.ErrNoPlan) {
			return errorResult("no plan for this project; run `loadout plan` first")
		} else if err != nil {
			return nil, nil, errors.Wrap(err, "loading plan")
		}

		before := make(map[string]bool)
		beforeVersion := 0
		updated, err := s.sessions.Update(func(current *planner.LoadPlan) (*planner.LoadPlan, error) {
			if current == nil {
				return nil, errors.New("plan was cleared mid-session")
			}
			beforeVersion = current.Version
			for _, sel := range current.Selected {
				before[sel.ArtifactID] = true
			}
			return planner.NewSelector(s.catalog, current.Mode).Extend(ctx, current, matched)
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "extending plan")
		}

		added := make([]string, 0, len(matched))
		for _, sel := range updated.Selected {
			if !before[sel.ArtifactID] {
				added = append(added, sel.ArtifactID)
			}
		}

		out := requestDocsResult{
			Matched:     matched,
			Added:       added,
			PlanVersion: updated.Version,
			TotalCost:   updated.TotalCost,
			Remaining:   updated.Remaining(),
			Advisories:  updated.Advisories,
			Evictions:   updated.Evictions,
		}

		if updated.Version == beforeVersion {
			out.Message = "no plan changes: matched artifacts are already loaded or did not fit (see advisories)"
			return jsonResult(out)
		}

		results, err := s.installer.Apply(ctx, updated)
		if err != nil {
			return nil, nil, errors.Wrap(err, "installing docs")
		}
		for name, res := range results {
			if res.Err == nil && res.Changed() {
				out.Installed = append(out.Installed, name)
			}
		}
		sort.Strings(out.Installed)
		out.Failed = install.FailedTargets(results)

		if len(results) > 0 && install.AllFailed(results) {
			return errorResult("plan extended to version %d, but installing failed for every target (%s)",
				updated.Version, strings.Join(out.Failed, ", "))
		}
		if len(out.Failed) > 0 {
			out.Message = fmt.Sprintf("install failed for %s", strings.Join(out.Failed, ", "))
		}

		logger.G(ctx).WithField("added", added).WithField("version", updated.Version).Info("extended plan from hint")
		return jsonResult(out)
	})
	return nil
}

// jsonResult marshals v into a single text content block.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult reports a tool-level failure the calling agent can act on.
func errorResult(format string, args ...any) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}, nil, nil
}
