// Package history keeps a log of skill executions in SQLite.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/zeroagent/zeroagent/pkg/db"
	"github.com/zeroagent/zeroagent/pkg/db/migrations"
)

// DefaultLimit bounds List when no limit is given
const DefaultLimit = 50

// timeLayout keeps a fixed width so timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded skill execution
type Run struct {
	ID         string    `json:"id"`
	SkillName  string    `json:"skillName"`
	Cause      string    `json:"cause"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Result     any       `json:"result,omitempty"`
}

// Duration is how long the execution took
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type runRow struct {
	ID         string  `db:"id"`
	SkillName  string  `db:"skill_name"`
	Cause      string  `db:"cause"`
	StartedAt  string  `db:"started_at"`
	FinishedAt string  `db:"finished_at"`
	Success    bool    `db:"success"`
	Error      string  `db:"error"`
	Result     *string `db:"result"`
}

func (row runRow) toRun() (Run, error) {
	run := Run{
		ID:        row.ID,
		SkillName: row.SkillName,
		Cause:     row.Cause,
		Success:   row.Success,
		Error:     row.Error,
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, row.StartedAt); err != nil {
		return run, errors.Wrap(err, "failed to parse started_at")
	}
	if run.FinishedAt, err = time.Parse(timeLayout, row.FinishedAt); err != nil {
		return run, errors.Wrap(err, "failed to parse finished_at")
	}
	if row.Result != nil {
		if err := json.Unmarshal([]byte(*row.Result), &run.Result); err != nil {
			return run, errors.Wrap(err, "failed to unmarshal result")
		}
	}
	return run, nil
}

// Filter narrows List
type Filter struct {
	SkillName string
	Limit     int
}

// Store records runs in the history database
type Store struct {
	db *sqlx.DB
}

// Open opens the history database at path, applying pending migrations
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := db.Open(ctx, path, migrations.All())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	return &Store{db: sqlDB}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run, assigning an ID when it has none
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	var result *string
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return run, errors.Wrap(err, "failed to marshal result")
		}
		encoded := string(data)
		result = &encoded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_runs (id, skill_name, cause, started_at, finished_at, success, error, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.SkillName, run.Cause,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Success, run.Error, result)
	if err != nil {
		return run, errors.Wrapf(err, "failed to record run of %s", run.SkillName)
	}
	return run, nil
}

// List returns the most recent runs first
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}

	query := "SELECT id, skill_name, cause, started_at, finished_at, success, error, result FROM skill_runs"
	args := []any{}
	if f.SkillName != "" {
		query += " WHERE skill_name = ?"
		args = append(args, f.SkillName)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, f.Limit)

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid run %s", row.ID)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Prune deletes runs that started before cutoff and returns how many were removed
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM skill_runs WHERE started_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune runs")
	}
	return res.RowsAffected()
}
