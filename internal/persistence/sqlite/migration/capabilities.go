package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Capabilities answers questions about the underlying engine that migration
// bodies need to choose between alternative DDL strategies.
type Capabilities interface {
	SupportsColumnDrop() bool
}

// StaticCapabilities is a fixed answer set, used in tests and when the engine
// version is known ahead of time.
type StaticCapabilities struct {
	ColumnDrop bool
}

// SupportsColumnDrop implements Capabilities.
func (c StaticCapabilities) SupportsColumnDrop() bool {
	return c.ColumnDrop
}

// EngineCapabilities is derived from the version reported by sqlite_version().
type EngineCapabilities struct {
	Version string
	major   int
	minor   int
}

// SupportsColumnDrop implements Capabilities. ALTER TABLE ... DROP COLUMN exists
// from SQLite 3.35.0.
func (c EngineCapabilities) SupportsColumnDrop() bool {
	return c.major > 3 || (c.major == 3 && c.minor >= 35)
}

// ProbeCapabilities queries the engine once and returns its capabilities.
func ProbeCapabilities(ctx context.Context, db Tx) (EngineCapabilities, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return EngineCapabilities{}, NewDatabaseError(0, "SELECT sqlite_version()", "probe engine version", err)
	}
	return parseEngineVersion(version)
}

func parseEngineVersion(version string) (EngineCapabilities, error) {
	parts := strings.Split(strings.TrimSpace(version), ".")
	if len(parts) < 2 {
		return EngineCapabilities{}, fmt.Errorf("unexpected sqlite version %q", version)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return EngineCapabilities{}, fmt.Errorf("unexpected sqlite version %q: %w", version, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return EngineCapabilities{}, fmt.Errorf("unexpected sqlite version %q: %w", version, err)
	}
	return EngineCapabilities{Version: version, major: major, minor: minor}, nil
}

// TableRebuild describes the replacement table used when a column has to be
// dropped by copying the table.
type TableRebuild struct {
	Table string
	// CreateSQL creates the replacement table named Table + "_new".
	CreateSQL string
	// Columns are copied from the old table into the replacement.
	Columns []string
	// Indexes are recreated after the swap. Use CREATE INDEX IF NOT EXISTS.
	Indexes []string
}

// DropColumns removes columns from rebuild.Table. With engine support it issues
// ALTER TABLE ... DROP COLUMN; otherwise it creates the replacement table, copies
// the surviving columns, drops the original and renames the replacement.
// Indexes that cover a dropped column must be dropped by the caller first.
func DropColumns(ctx context.Context, tx Tx, caps Capabilities, rebuild TableRebuild, columns ...string) error {
	if caps != nil && caps.SupportsColumnDrop() {
		for _, column := range columns {
			stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", rebuild.Table, column)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to drop column %s.%s: %w", rebuild.Table, column, err)
			}
		}
		return nil
	}

	newTable := rebuild.Table + "_new"
	cols := strings.Join(rebuild.Columns, ", ")
	statements := []string{
		rebuild.CreateSQL,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", newTable, cols, cols, rebuild.Table),
		fmt.Sprintf("DROP TABLE %s", rebuild.Table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", newTable, rebuild.Table),
	}
	statements = append(statements, rebuild.Indexes...)
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild table %s: %w", rebuild.Table, err)
		}
	}
	return nil
}
