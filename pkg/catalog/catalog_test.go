package catalog

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArtifacts() []Artifact {
	return []Artifact{
		{ID: "base", Cost: 100, Tier: 1, Category: CategoryCore, Content: "base content"},
		{ID: "style", Cost: 50, Tier: 2, Category: CategorySharedAlways, Content: "style content"},
		{ID: "rails", Cost: 80, Tier: 2, Category: CategoryFramework, Framework: "rails", Content: "rails content"},
		{ID: "tuning", Cost: 30, Tier: 5, Category: CategoryOnDemand, Triggers: []string{"slow"}, Content: "tuning content"},
	}
}

func TestNew(t *testing.T) {
	c, err := New(validArtifacts())
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())

	got, ok := c.Get("style")
	require.True(t, ok)
	assert.Equal(t, 50, got.Cost)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestNew_PreservesDeclarationOrder(t *testing.T) {
	c, err := New(validArtifacts())
	require.NoError(t, err)

	var ids []string
	for _, a := range c.Artifacts() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"base", "style", "rails", "tuning"}, ids)

	pos, ok := c.Position("rails")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func([]Artifact) []Artifact
		wantPart string
	}{
		{
			name: "non-positive cost",
			mutate: func(as []Artifact) []Artifact {
				as[1].Cost = 0
				return as
			},
			wantPart: "cost must be positive",
		},
		{
			name: "negative cost",
			mutate: func(as []Artifact) []Artifact {
				as[1].Cost = -10
				return as
			},
			wantPart: "cost must be positive",
		},
		{
			name: "tier too low",
			mutate: func(as []Artifact) []Artifact {
				as[0].Tier = 0
				return as
			},
			wantPart: "tier must be between 1 and 6",
		},
		{
			name: "tier too high",
			mutate: func(as []Artifact) []Artifact {
				as[3].Tier = 7
				return as
			},
			wantPart: "tier must be between 1 and 6",
		},
		{
			name: "duplicate id",
			mutate: func(as []Artifact) []Artifact {
				dup := as[1]
				return append(as, dup)
			},
			wantPart: "duplicate artifact id",
		},
		{
			name: "empty id",
			mutate: func(as []Artifact) []Artifact {
				as[2].ID = ""
				return as
			},
			wantPart: "artifact id is required",
		},
		{
			name: "unknown category",
			mutate: func(as []Artifact) []Artifact {
				as[1].Category = "sometimes"
				return as
			},
			wantPart: "unknown category",
		},
		{
			name: "framework without name",
			mutate: func(as []Artifact) []Artifact {
				as[2].Framework = ""
				return as
			},
			wantPart: "must declare a framework",
		},
		{
			name: "empty content",
			mutate: func(as []Artifact) []Artifact {
				as[0].Content = ""
				return as
			},
			wantPart: "content is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate(validArtifacts()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantPart)

			_, err = New(tt.mutate(validArtifacts()))
			assert.Error(t, err)
		})
	}
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	artifacts := validArtifacts()
	artifacts[0].Cost = -1
	artifacts[1].Tier = 9
	artifacts[2].Framework = ""

	err := Validate(artifacts)
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 3)

	var cerr *CatalogError
	require.True(t, errors.As(merr.Errors[0], &cerr))
	assert.Equal(t, "base", cerr.ArtifactID)
}

func TestCatalogError_Error(t *testing.T) {
	err := &CatalogError{ArtifactID: "style", Reason: "cost must be positive, got 0"}
	assert.Equal(t, `invalid artifact "style": cost must be positive, got 0`, err.Error())

	err = &CatalogError{Reason: "artifact id is required"}
	assert.Equal(t, "invalid catalog: artifact id is required", err.Error())
}

func TestMandatory(t *testing.T) {
	artifacts := validArtifacts()
	// A core artifact outside tier 1 is still mandatory.
	artifacts = append(artifacts, Artifact{
		ID: "policies", Cost: 40, Tier: 2, Category: CategoryCore, Content: "policy content",
	})

	c, err := New(artifacts)
	require.NoError(t, err)

	var ids []string
	for _, a := range c.Mandatory() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"base", "policies"}, ids)
}

func TestForFramework(t *testing.T) {
	c, err := New(validArtifacts())
	require.NoError(t, err)

	a, ok := c.ForFramework("rails")
	require.True(t, ok)
	assert.Equal(t, "rails", a.ID)

	_, ok = c.ForFramework("django")
	assert.False(t, ok)

	_, ok = c.ForFramework("")
	assert.False(t, ok)
}

func TestFrameworks(t *testing.T) {
	c, err := New(validArtifacts())
	require.NoError(t, err)

	assert.Equal(t, []string{"rails"}, c.Frameworks())
}

func TestOnDemand(t *testing.T) {
	c, err := New(validArtifacts())
	require.NoError(t, err)

	onDemand := c.OnDemand()
	require.Len(t, onDemand, 1)
	assert.Equal(t, "tuning", onDemand[0].ID)
}

func TestArtifactPredicates(t *testing.T) {
	core := Artifact{Tier: 1, Category: CategoryCore}
	assert.True(t, core.Mandatory())
	assert.True(t, core.AutoLoadable())
	assert.False(t, core.Evictable())

	shared := Artifact{Tier: 3, Category: CategorySharedAlways}
	assert.False(t, shared.Mandatory())
	assert.True(t, shared.AutoLoadable())
	assert.False(t, shared.Evictable())

	framework := Artifact{Tier: 2, Category: CategoryFramework, Framework: "vue"}
	assert.False(t, framework.Mandatory())
	assert.False(t, framework.AutoLoadable())

	onDemand := Artifact{Tier: 5, Category: CategoryOnDemand}
	assert.False(t, onDemand.AutoLoadable())
	assert.True(t, onDemand.Evictable())

	installOnly := Artifact{Tier: 6, Category: CategoryOnDemand}
	assert.False(t, installOnly.AutoLoadable())
	assert.True(t, installOnly.Evictable())
}

func TestArtifactsReturnsCopy(t *testing.T) {
	c, err := New(validArtifacts())
	require.NoError(t, err)

	got := c.Artifacts()
	got[0].Cost = 999999

	again, ok := c.Get("base")
	require.True(t, ok)
	assert.Equal(t, 100, again.Cost)
}
