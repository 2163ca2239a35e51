package migrations

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/db"
)

func Migration20261017090001AddSkillRunsIndexes() db.Migration {
	return db.Migration{
		Version:     20261017090001,
		Description: "Add skill_runs lookup indexes",
		Up: func(tx *sql.Tx) error {
			indexes := []string{
				"CREATE INDEX IF NOT EXISTS idx_skill_runs_started_at ON skill_runs(started_at DESC)",
				"CREATE INDEX IF NOT EXISTS idx_skill_runs_skill_name ON skill_runs(skill_name, started_at DESC)",
			}
			for _, stmt := range indexes {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to execute %s", stmt)
				}
			}
			return nil
		},
	}
}
