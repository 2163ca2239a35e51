package migrations

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/db"
)

func Migration20261017090000CreateSkillRuns() db.Migration {
	return db.Migration{
		Version:     20261017090000,
		Description: "Create skill_runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS skill_runs (
					id TEXT PRIMARY KEY,
					skill_name TEXT NOT NULL,
					cause TEXT NOT NULL,
					started_at TEXT NOT NULL,
					finished_at TEXT NOT NULL,
					success BOOLEAN NOT NULL,
					error TEXT NOT NULL DEFAULT '',
					result TEXT
				)
			`)
			return errors.Wrap(err, "failed to create skill_runs table")
		},
	}
}
