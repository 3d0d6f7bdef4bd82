package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/migration"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/schema"
)

// Options configures Open.
type Options struct {
	// SQLite describes the database file and its pragmas.
	SQLite migration.SQLiteConfig

	// TargetVersion is the schema version to bootstrap to; 0 means latest.
	TargetVersion int

	// SkipBootstrap opens the database without touching the schema. Used by
	// tooling that drives the migration manager directly.
	SkipBootstrap bool

	// Capabilities overrides engine feature detection when non-nil.
	Capabilities migration.Capabilities

	// DisableChecksumVerification skips the migration_history checksum check.
	DisableChecksumVerification bool

	Logger *slog.Logger

	// Now is the clock for ticket and comment timestamps. Migration history
	// always records wall-clock time.
	Now func() time.Time

	IDGenerator func() string
}

// Storage is the SQLite ticket store. It embeds the ticket and ordering
// repositories and so satisfies persistence.TicketStore.
type Storage struct {
	*TicketRepository
	*OrderingRepository

	pool       *ConnectionPool
	migrations *migration.Manager
	logger     *slog.Logger
}

var _ persistence.TicketStore = (*Storage)(nil)

// Open connects to the database, reconciles its schema and returns the store.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := NewConnectionPool(ctx, opts.SQLite)
	if err != nil {
		return nil, err
	}

	caps := opts.Capabilities
	if caps == nil {
		probed, err := migration.ProbeCapabilities(ctx, pool.DB())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to probe engine capabilities: %w", err)
		}
		logger.Debug("sqlite engine detected",
			slog.String("version", probed.Version),
			slog.Bool("column_drop", probed.SupportsColumnDrop()),
		)
		caps = probed
	}

	managerOpts := []migration.ManagerOption{
		migration.WithLogger(logger),
		migration.WithChecksumVerification(!opts.DisableChecksumVerification),
	}
	manager := migration.NewManager(
		pool.DB(),
		migration.NewRegistry(schema.Migrations(), logger),
		caps,
		managerOpts...,
	)

	if !opts.SkipBootstrap {
		if err := manager.Bootstrap(ctx, opts.TargetVersion); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}

	repoOpts := []RepositoryOption{WithClock(opts.Now), WithIDGenerator(opts.IDGenerator)}
	return &Storage{
		TicketRepository:   NewTicketRepository(pool, repoOpts...),
		OrderingRepository: NewOrderingRepository(pool, repoOpts...),
		pool:               pool,
		migrations:         manager,
		logger:             logger,
	}, nil
}

// Close releases the database connection.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Migrations exposes the schema migration manager.
func (s *Storage) Migrations() *migration.Manager {
	return s.migrations
}

// RenormalizeCrowded renormalizes every status column whose neighbours sit too
// close together and returns the number of tickets rewritten per column.
func (s *Storage) RenormalizeCrowded(ctx context.Context) (map[persistence.Status]int, error) {
	rewritten := make(map[persistence.Status]int)
	var errs []error
	for _, status := range persistence.Statuses() {
		crowded, err := s.NeedsRenormalize(ctx, status)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !crowded {
			continue
		}
		n, err := s.RenormalizeColumn(ctx, status)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rewritten[status] = n
		s.logger.Info("column renormalized", slog.String("status", string(status)), slog.Int("tickets", n))
	}
	return rewritten, errors.Join(errs...)
}
