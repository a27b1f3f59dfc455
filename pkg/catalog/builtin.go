package catalog

import (
	"embed"
	"io/fs"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

//go:embed docs/*
var builtinFS embed.FS

// Builtin returns the embedded builtin document set. Documents are named
// with numeric prefixes so lexical order is declaration order.
func Builtin() fs.FS {
	return builtinFS
}

// Budget presets sized against the builtin catalog: core covers the
// mandatory material plus the shared essentials, smart leaves room for a
// framework artifact, full fits everything the catalog can select at once.
const (
	BudgetCore  = 29740
	BudgetSmart = 31740
	BudgetFull  = 61740
)

var budgetPresets = map[string]int{
	"core":  BudgetCore,
	"smart": BudgetSmart,
	"full":  BudgetFull,
}

// BudgetPreset returns the named preset budget.
func BudgetPreset(name string) (int, bool) {
	budget, ok := budgetPresets[name]
	return budget, ok
}

// BudgetPresetNames returns the preset names in ascending budget order.
func BudgetPresetNames() []string {
	names := make([]string, 0, len(budgetPresets))
	for name := range budgetPresets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return budgetPresets[names[i]] < budgetPresets[names[j]]
	})
	return names
}

// ResolveBudget turns a budget flag value into a token count. The value is
// either a preset name or a positive integer.
func ResolveBudget(value string) (int, error) {
	if budget, ok := BudgetPreset(value); ok {
		return budget, nil
	}
	budget, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Errorf("unknown budget %q: expected a number or one of the presets %v", value, BudgetPresetNames())
	}
	if budget <= 0 {
		return 0, errors.Errorf("budget must be positive, got %d", budget)
	}
	return budget, nil
}
