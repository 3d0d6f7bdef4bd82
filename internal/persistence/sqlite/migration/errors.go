package migration

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrMigrationFailed indicates that an up or down body failed and the batch was rolled back
	ErrMigrationFailed = errors.New("migration execution failed")

	// ErrInvalidMigration indicates a registry entry without a positive version or an up body
	ErrInvalidMigration = errors.New("invalid migration definition")

	// ErrDuplicateVersion indicates that multiple migrations have the same version
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrInvalidVersion indicates a target version the registry cannot reach
	ErrInvalidVersion = errors.New("invalid migration version")

	// ErrIrreversible indicates a rollback through a migration that has no down body
	ErrIrreversible = errors.New("migration is not reversible")

	// ErrChecksumMismatch indicates that a shipped migration was edited after it was applied
	ErrChecksumMismatch = errors.New("migration checksum mismatch")

	// ErrSchemaAhead indicates that the database is newer than the requested target
	ErrSchemaAhead = errors.New("database schema is ahead of target version")

	// ErrVersionTableCorrupt indicates that the schema_version singleton row is missing
	ErrVersionTableCorrupt = errors.New("schema_version table is corrupted")

	// ErrForeignKeyViolation indicates rows left dangling by a migration batch
	ErrForeignKeyViolation = errors.New("foreign key check failed after migration")
)

// MigrationError wraps migration-specific errors with additional context
type MigrationError struct {
	Version   int    // Migration version that caused the error
	Name      string // Human label of the migration
	Operation string // Operation being performed (up, down, list, bootstrap, ...)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *MigrationError) Error() string {
	if e.Version > 0 {
		if e.Name != "" {
			return fmt.Sprintf("migration %d (%s): %s: %v", e.Version, e.Name, e.Operation, e.Err)
		}
		return fmt.Sprintf("migration %d: %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration error: %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error
func (e *MigrationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewMigrationError creates a new MigrationError with context
func NewMigrationError(version int, name, operation string, err error) *MigrationError {
	return &MigrationError{
		Version:   version,
		Name:      name,
		Operation: operation,
		Err:       err,
	}
}

// IrreversibleError lists the migrations that block a rollback.
type IrreversibleError struct {
	Versions []int
}

func (e *IrreversibleError) Error() string {
	parts := make([]string, len(e.Versions))
	for i, v := range e.Versions {
		parts[i] = strconv.Itoa(v)
	}
	return fmt.Sprintf("%v: no down for version(s) %s", ErrIrreversible, strings.Join(parts, ", "))
}

// Is reports whether target is ErrIrreversible.
func (e *IrreversibleError) Is(target error) bool {
	return target == ErrIrreversible
}

// DatabaseError wraps database-related errors during migration operations
type DatabaseError struct {
	Version   int    // Migration version (if applicable)
	Query     string // SQL query that failed (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("database error in migration %d during %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(version int, query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Version:   version,
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}
