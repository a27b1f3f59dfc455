package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loadout-sh/loadout/pkg/history"
)

func TestFormatTargetNotes(t *testing.T) {
	tests := []struct {
		name    string
		targets map[string]history.TargetNote
		want    string
	}{
		{
			name: "nothing installed",
			want: "-",
		},
		{
			name: "sorted target names",
			targets: map[string]history.TargetNote{
				"windsurf": {Written: 1},
				"claude":   {Written: 3},
				"cursor":   {Unchanged: 1},
			},
			want: "claude,cursor,windsurf",
		},
		{
			name: "failures marked",
			targets: map[string]history.TargetNote{
				"claude": {Written: 3},
				"cursor": {Error: "permission denied"},
			},
			want: "claude,cursor(failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTargetNotes(tt.targets))
		})
	}
}
