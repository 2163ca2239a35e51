// Package migrations holds the schema of the run history database.
package migrations

import "github.com/zeroagent/zeroagent/pkg/db"

// All returns every migration. New migrations are appended here.
func All() []db.Migration {
	return []db.Migration{
		Migration20261017090000CreateSkillRuns(),
		Migration20261017090001AddSkillRunsIndexes(),
	}
}
