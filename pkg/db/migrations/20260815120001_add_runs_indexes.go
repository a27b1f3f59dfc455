package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/db"
)

// Migration20260815120001AddRunsIndexes adds the indexes the history list
// queries rely on.
func Migration20260815120001AddRunsIndexes() db.Migration {
	return db.Migration{
		Version:     20260815120001,
		Description: "Add runs indexes",
		Up: func(tx *sql.Tx) error {
			indexes := []string{
				"CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)",
				"CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project)",
				"CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command)",
			}

			for _, idx := range indexes {
				if _, err := tx.Exec(idx); err != nil {
					return errors.Wrap(err, "failed to create index")
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			dropIndexes := []string{
				"DROP INDEX IF EXISTS idx_runs_command",
				"DROP INDEX IF EXISTS idx_runs_project",
				"DROP INDEX IF EXISTS idx_runs_created_at",
			}

			for _, drop := range dropIndexes {
				if _, err := tx.Exec(drop); err != nil {
					return errors.Wrap(err, "failed to drop index")
				}
			}
			return nil
		},
	}
}
