package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	createSchemaVersionSQL = `
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL DEFAULT 0
		)`

	createHistorySQL = `
		CREATE TABLE IF NOT EXISTS migration_history (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
)

// VersionStore reads and writes the schema_version singleton row and the
// migration_history table. It holds no connection: every call takes the Tx it
// should run on so the runner can keep all writes inside the batch transaction.
type VersionStore struct {
	now func() time.Time
}

// NewVersionStore creates a VersionStore. A nil clock defaults to time.Now.
func NewVersionStore(now func() time.Time) *VersionStore {
	if now == nil {
		now = time.Now
	}
	return &VersionStore{now: now}
}

// Init creates the tracking tables and the version row at 0 when absent.
func (s *VersionStore) Init(ctx context.Context, tx Tx) error {
	for _, stmt := range []string{createSchemaVersionSQL, createHistorySQL} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return NewDatabaseError(0, stmt, "create version tables", err)
		}
	}
	const seed = `INSERT OR IGNORE INTO schema_version (id, version) VALUES (1, 0)`
	if _, err := tx.ExecContext(ctx, seed); err != nil {
		return NewDatabaseError(0, seed, "seed schema_version", err)
	}
	return nil
}

// Current returns the recorded schema version.
func (s *VersionStore) Current(ctx context.Context, tx Tx) (int, error) {
	const query = `SELECT version FROM schema_version WHERE id = 1`
	var version int
	if err := tx.QueryRowContext(ctx, query).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrVersionTableCorrupt
		}
		return 0, NewDatabaseError(0, query, "read schema version", err)
	}
	return version, nil
}

// Set overwrites the recorded schema version.
func (s *VersionStore) Set(ctx context.Context, tx Tx, version int) error {
	const stmt = `UPDATE schema_version SET version = ? WHERE id = 1`
	res, err := tx.ExecContext(ctx, stmt, version)
	if err != nil {
		return NewDatabaseError(version, stmt, "update schema version", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewDatabaseError(version, stmt, "update schema version", err)
	}
	if affected == 0 {
		return ErrVersionTableCorrupt
	}
	return nil
}

// Record stores the history row for an applied migration.
func (s *VersionStore) Record(ctx context.Context, tx Tx, m Migration, elapsed time.Duration) error {
	const stmt = `
		INSERT OR REPLACE INTO migration_history (version, name, checksum, applied_at, execution_time_ms)
		VALUES (?, ?, ?, ?, ?)`
	appliedAt := s.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, stmt, m.Version, m.Name, m.Checksum(), appliedAt, elapsed.Milliseconds()); err != nil {
		return NewDatabaseError(m.Version, stmt, "record migration", err)
	}
	return nil
}

// Forget removes the history row of a rolled back migration.
func (s *VersionStore) Forget(ctx context.Context, tx Tx, version int) error {
	const stmt = `DELETE FROM migration_history WHERE version = ?`
	if _, err := tx.ExecContext(ctx, stmt, version); err != nil {
		return NewDatabaseError(version, stmt, "forget migration", err)
	}
	return nil
}

// Applied returns the history rows in ascending version order.
func (s *VersionStore) Applied(ctx context.Context, tx Tx) ([]AppliedMigration, error) {
	const query = `
		SELECT version, name, checksum, applied_at, execution_time_ms
		FROM migration_history
		ORDER BY version ASC`
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, NewDatabaseError(0, query, "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			row       AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&row.Version, &row.Name, &row.Checksum, &appliedAt, &elapsedMs); err != nil {
			return nil, NewDatabaseError(0, query, "scan applied migration", err)
		}
		ts, err := time.Parse(time.RFC3339, appliedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid applied_at for migration %d: %w", row.Version, err)
		}
		row.AppliedAt = ts
		row.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, row)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(0, query, "iterate applied migrations", err)
	}
	return applied, nil
}
