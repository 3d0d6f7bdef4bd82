package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Runner applies and rolls back batches of registered migrations. Every batch
// runs in a single transaction on one pinned connection: either all migrations
// in the batch take effect together with their schema_version updates, or none do.
type Runner struct {
	db       *sql.DB
	registry *Registry
	versions *VersionStore
	caps     Capabilities
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a Runner. A nil logger falls back to slog.Default.
func NewRunner(db *sql.DB, registry *Registry, versions *VersionStore, caps Capabilities, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if versions == nil {
		versions = NewVersionStore(nil)
	}
	if caps == nil {
		caps = StaticCapabilities{}
	}
	return &Runner{
		db:       db,
		registry: registry,
		versions: versions,
		caps:     caps,
		logger:   logger,
		now:      time.Now,
	}
}

// Apply runs the up body of every migration with current < version <= target,
// ascending. schema_version is advanced after each migration inside the batch
// transaction. An empty selection is a no-op.
func (r *Runner) Apply(ctx context.Context, current, target int) error {
	all, err := r.registry.List()
	if err != nil {
		return err
	}

	var pending []Migration
	for _, m := range all {
		if m.Version > current && m.Version <= target {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		r.logger.Info("no migrations to apply",
			slog.Int("current_version", current),
			slog.Int("target_version", target),
		)
		return nil
	}

	r.logger.Info("applying migrations",
		slog.Int("current_version", current),
		slog.Int("target_version", target),
		slog.Int("count", len(pending)),
	)
	batchStart := r.now()
	err = r.runBatch(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, m := range pending {
			start := r.now()
			if err := m.runUp(ctx, tx, r.caps); err != nil {
				return NewMigrationError(m.Version, m.Name, "up", fmt.Errorf("%w: %w", ErrMigrationFailed, err))
			}
			if err := r.versions.Set(ctx, tx, m.Version); err != nil {
				return NewMigrationError(m.Version, m.Name, "set version", err)
			}
			elapsed := r.now().Sub(start)
			if err := r.versions.Record(ctx, tx, m, elapsed); err != nil {
				return NewMigrationError(m.Version, m.Name, "record", err)
			}
			r.logger.Info("migration applied",
				slog.Int("version", m.Version),
				slog.String("name", m.Name),
				slog.Duration("elapsed", elapsed),
			)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("migration batch rolled back",
			slog.Int("version", current),
			slog.Any("error", err),
		)
		return err
	}

	r.logger.Info("migrations complete",
		slog.Int("version", pending[len(pending)-1].Version),
		slog.Duration("elapsed", r.now().Sub(batchStart)),
	)
	return nil
}

// Rollback runs the down body of every migration with target < version <= current,
// descending. It is a no-op unless target < current. Every selected migration must
// be reversible; otherwise the rollback is rejected before a transaction is opened.
// After each step schema_version is set to the next lower registered version, or 0.
func (r *Runner) Rollback(ctx context.Context, current, target int) error {
	if target >= current {
		r.logger.Info("no migrations to roll back",
			slog.Int("current_version", current),
			slog.Int("target_version", target),
		)
		return nil
	}

	all, err := r.registry.List()
	if err != nil {
		return err
	}

	var (
		selected []Migration
		missing  []int
	)
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		if m.Version > target && m.Version <= current {
			selected = append(selected, m)
			if !m.Reversible() {
				missing = append(missing, m.Version)
			}
		}
	}
	if len(missing) > 0 {
		return &IrreversibleError{Versions: missing}
	}
	if len(selected) == 0 {
		r.logger.Info("no registered migrations in rollback range",
			slog.Int("current_version", current),
			slog.Int("target_version", target),
		)
		return nil
	}

	r.logger.Info("rolling back migrations",
		slog.Int("current_version", current),
		slog.Int("target_version", target),
		slog.Int("count", len(selected)),
	)
	err = r.runBatch(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, m := range selected {
			if err := m.runDown(ctx, tx, r.caps); err != nil {
				return NewMigrationError(m.Version, m.Name, "down", fmt.Errorf("%w: %w", ErrMigrationFailed, err))
			}
			next := previousVersion(all, m.Version)
			if err := r.versions.Set(ctx, tx, next); err != nil {
				return NewMigrationError(m.Version, m.Name, "set version", err)
			}
			if err := r.versions.Forget(ctx, tx, m.Version); err != nil {
				return NewMigrationError(m.Version, m.Name, "forget", err)
			}
			r.logger.Info("migration rolled back",
				slog.Int("version", m.Version),
				slog.String("name", m.Name),
				slog.Int("schema_version", next),
			)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("rollback batch rolled back",
			slog.Int("version", current),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// previousVersion returns the highest version in the ascending list below v.
func previousVersion(all []Migration, v int) int {
	prev := 0
	for _, m := range all {
		if m.Version >= v {
			break
		}
		prev = m.Version
	}
	return prev
}

// runBatch executes fn inside one transaction on a pinned connection. Foreign key
// enforcement is switched off for the batch so table rebuilds do not cascade,
// and PRAGMA foreign_key_check must come back clean before commit.
func (r *Runner) runBatch(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return NewDatabaseError(0, "", "acquire connection", err)
	}
	defer conn.Close()

	var foreignKeys int
	if err = conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		return NewDatabaseError(0, "PRAGMA foreign_keys", "read foreign key mode", err)
	}
	if foreignKeys == 1 {
		if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return NewDatabaseError(0, "PRAGMA foreign_keys = OFF", "disable foreign keys", err)
		}
		defer func() {
			if _, restoreErr := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON"); restoreErr != nil {
				r.logger.Error("failed to restore foreign keys", slog.Any("error", restoreErr))
				if err == nil {
					err = NewDatabaseError(0, "PRAGMA foreign_keys = ON", "restore foreign keys", restoreErr)
				}
			}
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(0, "", "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				r.logger.Error("failed to roll back migration batch", slog.Any("error", rollbackErr))
			}
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if foreignKeys == 1 {
		if err = checkForeignKeys(ctx, tx); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return NewDatabaseError(0, "", "commit transaction", err)
	}
	return nil
}

func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return NewDatabaseError(0, "PRAGMA foreign_key_check", "check foreign keys", err)
	}
	defer rows.Close()

	if rows.Next() {
		var (
			table  string
			rowID  sql.NullInt64
			parent string
			fkID   int
		)
		if err := rows.Scan(&table, &rowID, &parent, &fkID); err != nil {
			return NewDatabaseError(0, "PRAGMA foreign_key_check", "scan foreign key violation", err)
		}
		return fmt.Errorf("%w: %s row %d references missing %s", ErrForeignKeyViolation, table, rowID.Int64, parent)
	}
	if err := rows.Err(); err != nil {
		return NewDatabaseError(0, "PRAGMA foreign_key_check", "check foreign keys", err)
	}
	return nil
}
