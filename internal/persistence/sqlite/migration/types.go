package migration

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Tx is the subset of *sql.Tx, *sql.Conn and *sql.DB that migration bodies and the
// version store need.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Func is a migration body. It runs inside the batch transaction and receives the
// engine capabilities so it can pick a strategy without inspecting version strings.
type Func func(ctx context.Context, tx Tx, caps Capabilities) error

// Migration is one versioned schema change. Either Up or UpSQL must be set; a
// migration is reversible when Down or DownSQL is set. Shipped migrations are
// append-only: the checksum covers the SQL text and Revision, so editing SQL
// fails startup verification. Function bodies are opaque to the checksum; a
// migration with Up or Down must bump Revision whenever that body changes.
type Migration struct {
	Version  int    // Positive, unique, strictly ordered
	Name     string // Human-readable label
	Up       Func
	Down     Func
	UpSQL    string // Semicolon separated statements, used when Up is nil
	DownSQL  string // Semicolon separated statements, used when Down is nil
	Revision string // Edit marker for Up/Down function bodies
}

// HasUp reports whether the migration declares a forward body.
func (m Migration) HasUp() bool {
	return m.Up != nil || strings.TrimSpace(m.UpSQL) != ""
}

// Reversible reports whether the migration declares a down body.
func (m Migration) Reversible() bool {
	return m.Down != nil || strings.TrimSpace(m.DownSQL) != ""
}

// Checksum returns the hex BLAKE2b-256 digest of the migration's identity, SQL
// text and Revision. An empty Revision leaves the digest of SQL-only migrations
// unchanged.
func (m Migration) Checksum() string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(strconv.Itoa(m.Version)))
	h.Write([]byte{0})
	h.Write([]byte(m.Name))
	h.Write([]byte{0})
	h.Write([]byte(m.UpSQL))
	h.Write([]byte{0})
	h.Write([]byte(m.DownSQL))
	if m.Revision != "" {
		h.Write([]byte{0})
		h.Write([]byte(m.Revision))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m Migration) runUp(ctx context.Context, tx Tx, caps Capabilities) error {
	if m.Up != nil {
		return m.Up(ctx, tx, caps)
	}
	return m.execSQL(ctx, tx, m.UpSQL)
}

func (m Migration) runDown(ctx context.Context, tx Tx, caps Capabilities) error {
	if m.Down != nil {
		return m.Down(ctx, tx, caps)
	}
	return m.execSQL(ctx, tx, m.DownSQL)
}

func (m Migration) execSQL(ctx context.Context, tx Tx, script string) error {
	statements := splitStatements(script)
	if len(statements) == 0 {
		return fmt.Errorf("no SQL statements found in migration")
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), err)
		}
	}
	return nil
}

// MigrationStatus provides information about the current migration state
type MigrationStatus struct {
	CurrentVersion int                // Version recorded in schema_version
	LatestVersion  int                // Highest version known to the registry
	Applied        []AppliedMigration // Rows of migration_history, ascending
	Pending        []Migration        // Registered migrations above CurrentVersion
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       int
	Name          string
	Checksum      string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// splitStatements splits SQL content into individual statements, dropping
// comment-only lines.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if clean := strings.TrimSpace(strings.Join(lines, "\n")); clean != "" {
			statements = append(statements, clean)
		}
	}
	return statements
}
