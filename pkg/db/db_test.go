package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() []Migration {
	return []Migration{
		{
			Version:     20240101000002,
			Description: "Add column",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("ALTER TABLE test_table ADD COLUMN name TEXT")
				return err
			},
		},
		{
			Version:     20240101000001,
			Description: "Create test table",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE test_table (id INTEGER PRIMARY KEY)")
				return err
			},
		},
	}
}

func TestOpen_CreatesDirectoryInWALMode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", FileName)

	db, err := Open(context.Background(), dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
	require.NoError(t, VerifyConfiguration(context.Background(), db))
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/me/.zeroagent", "history.db"), Path("/home/me/.zeroagent"))
}

func TestMigrationRunner_SortsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), FileName)

	db, err := Open(ctx, dbPath, testMigrations())
	require.NoError(t, err)
	defer db.Close()

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, testMigrations()))

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20240101000001, 20240101000002}, versions)

	_, err = db.ExecContext(ctx, "INSERT INTO test_table (id, name) VALUES (1, 'x')")
	require.NoError(t, err)
}

func TestMigrationRunner_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), FileName), nil)
	require.NoError(t, err)
	defer db.Close()

	runner := NewMigrationRunner(db)
	err = runner.Run(ctx, []Migration{{
		Version:     20240101000001,
		Description: "Broken",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE nope (")
			return err
		},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)
}
