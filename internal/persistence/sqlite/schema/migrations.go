// Package schema declares the ordered migrations that build the ticket store.
// Entries are append-only: ship a new version instead of editing an old one.
package schema

import (
	"context"
	"fmt"

	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/migration"
)

// Migrations returns every schema migration of the ticket store.
func Migrations() []migration.Migration {
	return []migration.Migration{
		{
			Version: 1,
			Name:    "initial schema",
			UpSQL:   initialSchemaUp,
			DownSQL: initialSchemaDown,
		},
		{
			Version:  2,
			Name:     "add agent context",
			UpSQL:    `ALTER TABLE tickets ADD COLUMN agent_context TEXT`,
			Down:     dropAgentContext,
			Revision: "1",
		},
		{
			Version:  3,
			Name:     "add ticket position",
			UpSQL:    addPositionUp,
			Down:     dropPosition,
			Revision: "1",
		},
		{
			Version:  4,
			Name:     "drop legacy comment columns",
			Up:       dropLegacyCommentColumns,
			DownSQL:  restoreLegacyCommentColumns,
			Revision: "1",
		},
	}
}

const initialSchemaUp = `
CREATE TABLE tickets (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
	status TEXT NOT NULL DEFAULT 'backlog' CHECK (status IN ('backlog', 'up-next', 'in-progress', 'in-review', 'completed')),
	created TEXT NOT NULL,
	updated TEXT NOT NULL
);

CREATE TABLE complexity (
	ticket_id TEXT PRIMARY KEY REFERENCES tickets(id) ON DELETE CASCADE,
	files_touched INTEGER NOT NULL DEFAULT 0,
	modules_crossed INTEGER NOT NULL DEFAULT 0,
	stack_layers_involved INTEGER NOT NULL DEFAULT 0,
	dependencies INTEGER NOT NULL DEFAULT 0,
	shared_state_touches INTEGER NOT NULL DEFAULT 0,
	cascade_impact_zones INTEGER NOT NULL DEFAULT 0,
	subjectivity_rating INTEGER NOT NULL DEFAULT 0,
	loc_added INTEGER NOT NULL DEFAULT 0,
	loc_modified INTEGER NOT NULL DEFAULT 0,
	test_cases_written INTEGER NOT NULL DEFAULT 0,
	edge_cases INTEGER NOT NULL DEFAULT 0,
	mocks_required INTEGER NOT NULL DEFAULT 0,
	coordination_touchpoints INTEGER NOT NULL DEFAULT 0,
	review_rounds INTEGER NOT NULL DEFAULT 0,
	blockers_encountered INTEGER NOT NULL DEFAULT 0,
	cie_score REAL NOT NULL DEFAULT 0
);

CREATE TABLE comments (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT 'developer' CHECK (author IN ('developer', 'agent')),
	timestamp TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'comment',
	status TEXT NOT NULL DEFAULT 'open'
);

CREATE INDEX idx_tickets_status ON tickets (status);
CREATE INDEX idx_tickets_updated ON tickets (updated);
CREATE INDEX idx_comments_ticket_id ON comments (ticket_id);
`

const initialSchemaDown = `
DROP TABLE comments;
DROP TABLE complexity;
DROP TABLE tickets;
`

const addPositionUp = `
ALTER TABLE tickets ADD COLUMN position REAL NOT NULL DEFAULT 0;
CREATE INDEX idx_tickets_status_position ON tickets (status, position DESC);
CREATE INDEX idx_comments_ticket_timestamp ON comments (ticket_id, timestamp);
`

const restoreLegacyCommentColumns = `
ALTER TABLE comments ADD COLUMN type TEXT NOT NULL DEFAULT 'comment';
ALTER TABLE comments ADD COLUMN status TEXT NOT NULL DEFAULT 'open';
`

// ticketsTable renders the tickets DDL for a rebuild. extra holds the column
// definitions added by later migrations that survive the rebuild.
func ticketsTable(name string, extra ...string) string {
	ddl := fmt.Sprintf(`CREATE TABLE %s (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
	status TEXT NOT NULL DEFAULT 'backlog' CHECK (status IN ('backlog', 'up-next', 'in-progress', 'in-review', 'completed')),
	created TEXT NOT NULL,
	updated TEXT NOT NULL`, name)
	for _, column := range extra {
		ddl += ",\n\t" + column
	}
	return ddl + "\n)"
}

var ticketIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets (status)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_updated ON tickets (updated)`,
}

func dropAgentContext(ctx context.Context, tx migration.Tx, caps migration.Capabilities) error {
	return migration.DropColumns(ctx, tx, caps, migration.TableRebuild{
		Table:     "tickets",
		CreateSQL: ticketsTable("tickets_new"),
		Columns:   []string{"id", "title", "description", "priority", "status", "created", "updated"},
		Indexes:   ticketIndexes,
	}, "agent_context")
}

func dropPosition(ctx context.Context, tx migration.Tx, caps migration.Capabilities) error {
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS idx_comments_ticket_timestamp`,
		`DROP INDEX IF EXISTS idx_tickets_status_position`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return migration.DropColumns(ctx, tx, caps, migration.TableRebuild{
		Table:     "tickets",
		CreateSQL: ticketsTable("tickets_new", "agent_context TEXT"),
		Columns:   []string{"id", "title", "description", "priority", "status", "created", "updated", "agent_context"},
		Indexes:   ticketIndexes,
	}, "position")
}

func dropLegacyCommentColumns(ctx context.Context, tx migration.Tx, caps migration.Capabilities) error {
	return migration.DropColumns(ctx, tx, caps, migration.TableRebuild{
		Table: "comments",
		CreateSQL: `CREATE TABLE comments_new (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT 'developer' CHECK (author IN ('developer', 'agent')),
	timestamp TEXT NOT NULL
)`,
		Columns: []string{"id", "ticket_id", "content", "author", "timestamp"},
		Indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_comments_ticket_id ON comments (ticket_id)`,
			`CREATE INDEX IF NOT EXISTS idx_comments_ticket_timestamp ON comments (ticket_id, timestamp)`,
		},
	}, "type", "status")
}
