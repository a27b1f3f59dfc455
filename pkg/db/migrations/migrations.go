// Package migrations contains all database migrations for loadout.
// Migrations use Rails-style timestamp versioning (YYYYMMDDHHmmss).
package migrations

import (
	"github.com/loadout-sh/loadout/pkg/db"
)

// All returns all registered migrations in the correct order.
// New migrations should be added to this list.
func All() []db.Migration {
	return []db.Migration{
		Migration20260815120000CreateRuns(),
		Migration20260815120001AddRunsIndexes(),
	}
}
