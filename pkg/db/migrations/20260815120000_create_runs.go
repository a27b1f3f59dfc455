package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/db"
)

// Migration20260815120000CreateRuns creates the runs table recording every
// plan, extend, and apply invocation.
func Migration20260815120000CreateRuns() db.Migration {
	return db.Migration{
		Version:     20260815120000,
		Description: "Create runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					command TEXT NOT NULL,
					project TEXT NOT NULL,
					framework TEXT NOT NULL DEFAULT '',
					mode TEXT NOT NULL,
					budget INTEGER NOT NULL,
					total_cost INTEGER NOT NULL,
					selected TEXT NOT NULL DEFAULT '[]',
					advisories TEXT NOT NULL DEFAULT '[]',
					evictions TEXT NOT NULL DEFAULT '[]',
					targets TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create runs table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS runs")
			return errors.Wrap(err, "failed to drop runs table")
		},
	}
}
