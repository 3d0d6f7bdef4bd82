package schema

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/migration"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	cm := migration.NewConnectionManager(migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "schema.db")))
	db, err := cm.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newManager(db *sql.DB, caps migration.Capabilities) *migration.Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return migration.NewManager(db, migration.NewRegistry(Migrations(), logger), caps, migration.WithLogger(logger))
}

func columns(t *testing.T, db *sql.DB, table string) []string {
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

func TestMigrationsAreValidAndOrdered(t *testing.T) {
	list, err := migration.NewRegistry(Migrations(), nil).List()
	require.NoError(t, err)
	require.NotEmpty(t, list)

	for i, m := range list {
		assert.Equal(t, i+1, m.Version, "versions are contiguous")
		assert.NotEmpty(t, m.Name)
		assert.True(t, m.Reversible(), "migration %d must be reversible", m.Version)
	}
}

func TestLatestSchemaLayout(t *testing.T) {
	db := openDB(t)
	require.NoError(t, newManager(db, migration.StaticCapabilities{ColumnDrop: true}).Bootstrap(context.Background(), 0))

	assert.Equal(t, []string{
		"id", "title", "description", "priority", "status", "created", "updated", "agent_context", "position",
	}, columns(t, db, "tickets"))
	assert.Equal(t, []string{"id", "ticket_id", "content", "author", "timestamp"}, columns(t, db, "comments"))
	assert.Len(t, columns(t, db, "complexity"), 17)
}

func TestRoundTripPreservesData(t *testing.T) {
	for _, caps := range []migration.StaticCapabilities{{ColumnDrop: true}, {ColumnDrop: false}} {
		name := "rebuild"
		if caps.ColumnDrop {
			name = "alter"
		}
		t.Run(name, func(t *testing.T) {
			db := openDB(t)
			manager := newManager(db, caps)
			ctx := context.Background()

			require.NoError(t, manager.Bootstrap(ctx, 0))

			_, err := db.Exec(`INSERT INTO tickets (id, title, priority, status, created, updated, agent_context, position)
				VALUES ('t-1', 'Seed', 'high', 'backlog', '2024-01-01T00:00:00.000000000Z', '2024-01-01T00:00:00.000000000Z', 'ctx', 1000)`)
			require.NoError(t, err)
			_, err = db.Exec(`INSERT INTO complexity (ticket_id, files_touched, cie_score) VALUES ('t-1', 3, 1.2)`)
			require.NoError(t, err)
			_, err = db.Exec(`INSERT INTO comments (id, ticket_id, content, author, timestamp)
				VALUES ('c-1', 't-1', 'hello', 'agent', '2024-01-01T00:00:00.000000000Z')`)
			require.NoError(t, err)

			require.NoError(t, manager.MigrateTo(ctx, 1))
			assert.NotContains(t, columns(t, db, "tickets"), "position")
			assert.NotContains(t, columns(t, db, "tickets"), "agent_context")
			assert.Contains(t, columns(t, db, "comments"), "type")

			var count int
			require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM complexity WHERE ticket_id = 't-1'`).Scan(&count))
			assert.Equal(t, 1, count, "rebuilding tickets must not cascade into complexity")
			require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM comments WHERE ticket_id = 't-1'`).Scan(&count))
			assert.Equal(t, 1, count)

			require.NoError(t, manager.MigrateTo(ctx, 0))
			require.NoError(t, manager.Bootstrap(ctx, 0))

			status, err := manager.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, status.LatestVersion, status.CurrentVersion)

			var foreignKeys int
			require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
			assert.Equal(t, 1, foreignKeys)
		})
	}
}

func TestCascadeAfterRebuild(t *testing.T) {
	db := openDB(t)
	manager := newManager(db, migration.StaticCapabilities{ColumnDrop: false})
	ctx := context.Background()

	require.NoError(t, manager.Bootstrap(ctx, 0))
	require.NoError(t, manager.MigrateTo(ctx, 3))
	require.NoError(t, manager.MigrateTo(ctx, 4))

	_, err := db.Exec(`INSERT INTO tickets (id, title, created, updated) VALUES ('t-1', 'Seed', 'a', 'a')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO comments (id, ticket_id, content, timestamp) VALUES ('c-1', 't-1', 'x', 'a')`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM tickets WHERE id = 't-1'`)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM comments`).Scan(&count))
	assert.Equal(t, 0, count)

	_, err = db.Exec(`INSERT INTO comments (id, ticket_id, content, timestamp) VALUES ('c-2', 'missing', 'x', 'a')`)
	assert.Error(t, err, "rebuilt comments table keeps its foreign key")
}

func TestMigrations_FuncBodiesCarryRevision(t *testing.T) {
	for _, m := range Migrations() {
		if m.Up != nil || m.Down != nil {
			assert.NotEmpty(t, m.Revision, "migration %d (%s) has a function body", m.Version, m.Name)
		}
	}
}
