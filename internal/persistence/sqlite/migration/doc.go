// Package migration provides a versioned schema migration engine for SQLite databases.
//
// Migrations are declared as an explicit, ordered list of Migration values compiled
// into the binary. The engine supports:
//
//   - Forward application of every migration between the current and a target version
//   - Rollback through migrations that declare a down body
//   - One transaction per batch: a failure leaves the database at its previous version
//   - Engine capability queries injected into migration bodies
//   - Checksums of shipped migrations recorded in migration_history
//
// The current version lives in the schema_version singleton row (id = 1), created at
// version 0 the first time the database is opened.
//
// Example usage:
//
//	registry := migration.NewRegistry(schema.Migrations(), logger)
//	caps, err := migration.ProbeCapabilities(ctx, db)
//	if err != nil {
//		return err
//	}
//	manager := migration.NewManager(db, registry, caps, migration.WithLogger(logger))
//	if err := manager.Bootstrap(ctx, 0); err != nil {
//		return err
//	}
package migration
