package migration

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cm := NewConnectionManager(TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "migration.db")))
	db, err := cm.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRunner(t *testing.T, caps Capabilities, defs ...Migration) (*Runner, *sql.DB) {
	t.Helper()

	db := openTestDB(t)
	versions := NewVersionStore(nil)
	require.NoError(t, versions.Init(context.Background(), db))
	return NewRunner(db, NewRegistry(defs, discardLogger()), versions, caps, discardLogger()), db
}

func currentVersion(t *testing.T, db *sql.DB) int {
	t.Helper()

	version, err := NewVersionStore(nil).Current(context.Background(), db)
	require.NoError(t, err)
	return version
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	require.NoError(t, err)
	return count > 0
}

func columnNames(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

// recordingMigration returns a migration whose bodies create and drop a table
// named after the version and append to the shared journal.
func recordingMigration(version int, journal *[]string) Migration {
	table := tableName(version)
	return Migration{
		Version: version,
		Name:    "create " + table,
		Up: func(ctx context.Context, tx Tx, _ Capabilities) error {
			*journal = append(*journal, "up:"+table)
			_, err := tx.ExecContext(ctx, "CREATE TABLE "+table+" (id INTEGER PRIMARY KEY)")
			return err
		},
		Down: func(ctx context.Context, tx Tx, _ Capabilities) error {
			*journal = append(*journal, "down:"+table)
			_, err := tx.ExecContext(ctx, "DROP TABLE "+table)
			return err
		},
	}
}

func tableName(version int) string {
	return "t" + string(rune('0'+version))
}
