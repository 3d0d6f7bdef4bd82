package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Manager owns the version store and runner for one database and reconciles its
// schema with the registry.
type Manager struct {
	db              *sql.DB
	registry        *Registry
	versions        *VersionStore
	runner          *Runner
	logger          *slog.Logger
	verifyChecksums bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger          *slog.Logger
	now             func() time.Time
	verifyChecksums bool
}

// WithLogger sets the logger used by the manager and its runner.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithClock overrides the clock used for migration_history timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		o.now = now
	}
}

// WithChecksumVerification toggles comparison of recorded checksums against the
// registry on Bootstrap. Enabled by default.
func WithChecksumVerification(enabled bool) ManagerOption {
	return func(o *managerOptions) {
		o.verifyChecksums = enabled
	}
}

// NewManager creates a Manager for db.
func NewManager(db *sql.DB, registry *Registry, caps Capabilities, opts ...ManagerOption) *Manager {
	options := managerOptions{verifyChecksums: true}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger.With(slog.String("component", "migration"))
	versions := NewVersionStore(options.now)
	runner := NewRunner(db, registry, versions, caps, logger)
	if options.now != nil {
		runner.now = options.now
	}
	return &Manager{
		db:              db,
		registry:        registry,
		versions:        versions,
		runner:          runner,
		logger:          logger,
		verifyChecksums: options.verifyChecksums,
	}
}

// Runner exposes the underlying runner.
func (m *Manager) Runner() *Runner {
	return m.runner
}

// CurrentVersion initializes the tracking tables if needed and returns the
// recorded schema version.
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.versions.Init(ctx, m.db); err != nil {
		return 0, err
	}
	return m.versions.Current(ctx, m.db)
}

// Bootstrap brings the schema forward to target at process start. A target of 0
// or less means the latest registered version. A database that is already ahead
// of target is refused; downgrades go through MigrateTo.
func (m *Manager) Bootstrap(ctx context.Context, target int) error {
	latest, err := m.registry.Latest()
	if err != nil {
		return err
	}
	if target <= 0 {
		target = latest
	}
	if target > latest {
		return NewMigrationError(target, "", "bootstrap",
			fmt.Errorf("%w: latest registered version is %d", ErrInvalidVersion, latest))
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("current schema version",
		slog.Int("version", current),
		slog.Int("target_version", target),
		slog.Int("latest_version", latest),
	)

	if m.verifyChecksums {
		if err := m.VerifyChecksums(ctx); err != nil {
			return err
		}
	}

	if current > target {
		return NewMigrationError(current, "", "bootstrap",
			fmt.Errorf("%w: database is at %d, target is %d", ErrSchemaAhead, current, target))
	}
	return m.runner.Apply(ctx, current, target)
}

// MigrateTo applies or rolls back until the schema is at target. Unlike
// Bootstrap, target 0 means "roll everything back".
func (m *Manager) MigrateTo(ctx context.Context, target int) error {
	if target < 0 {
		return NewMigrationError(target, "", "migrate", ErrInvalidVersion)
	}
	latest, err := m.registry.Latest()
	if err != nil {
		return err
	}
	if target > latest {
		return NewMigrationError(target, "", "migrate",
			fmt.Errorf("%w: latest registered version is %d", ErrInvalidVersion, latest))
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	switch {
	case target > current:
		return m.runner.Apply(ctx, current, target)
	case target < current:
		return m.runner.Rollback(ctx, current, target)
	default:
		m.logger.Info("schema already at target version", slog.Int("version", current))
		return nil
	}
}

// VerifyChecksums compares migration_history against the registry. A recorded
// migration whose checksum differs from the compiled definition is an error;
// a recorded migration the registry no longer knows is only logged.
func (m *Manager) VerifyChecksums(ctx context.Context) error {
	all, err := m.registry.List()
	if err != nil {
		return err
	}
	byVersion := make(map[int]Migration, len(all))
	for _, def := range all {
		byVersion[def.Version] = def
	}

	applied, err := m.versions.Applied(ctx, m.db)
	if err != nil {
		return err
	}
	for _, row := range applied {
		def, ok := byVersion[row.Version]
		if !ok {
			m.logger.Warn("applied migration is not registered",
				slog.Int("version", row.Version),
				slog.String("name", row.Name),
			)
			continue
		}
		if def.Checksum() != row.Checksum {
			return NewMigrationError(row.Version, row.Name, "verify", ErrChecksumMismatch)
		}
	}
	return nil
}

// Status reports the recorded version, the registry's latest version, the
// applied history and the migrations still pending.
func (m *Manager) Status(ctx context.Context) (*MigrationStatus, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	all, err := m.registry.List()
	if err != nil {
		return nil, err
	}
	applied, err := m.versions.Applied(ctx, m.db)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{
		CurrentVersion: current,
		Applied:        applied,
	}
	for _, def := range all {
		status.LatestVersion = def.Version
		if def.Version > current {
			status.Pending = append(status.Pending, def)
		}
	}
	return status, nil
}
