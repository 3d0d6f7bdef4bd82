package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite"
	"github.com/ownlytics/mcptix-sub000/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides store access backed by a temporary, fully migrated
// SQLite database for integration-style tests.
type SQLiteHarness struct {
	Storage *sqlite.Storage
	Tickets persistence.TicketStore
	Clock   *Clock
	IDs     *IDGenerator

	cleanup func()
}

// HarnessOption configures NewSQLiteHarness.
type HarnessOption func(*harnessOptions)

type harnessOptions struct {
	clock *Clock
	ids   *IDGenerator
	tick  time.Duration
	caps  migration.Capabilities
}

// WithHarnessClock sets the clock read by the store.
func WithHarnessClock(clock *Clock) HarnessOption {
	return func(o *harnessOptions) {
		o.clock = clock
	}
}

// WithHarnessIDs sets the id generator used by the store.
func WithHarnessIDs(ids *IDGenerator) HarnessOption {
	return func(o *harnessOptions) {
		o.ids = ids
	}
}

// WithHarnessTick sets how far the clock advances on every store reading.
// Zero freezes the clock.
func WithHarnessTick(d time.Duration) HarnessOption {
	return func(o *harnessOptions) {
		o.tick = d
	}
}

// WithHarnessCapabilities overrides engine feature detection.
func WithHarnessCapabilities(caps migration.Capabilities) HarnessOption {
	return func(o *harnessOptions) {
		o.caps = caps
	}
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated to the latest schema. Callers may optionally invoke Close, but the
// helper also registers a cleanup callback with the provided testing.TB.
// By default the clock advances one millisecond per reading so that updated
// timestamps are strictly increasing.
func NewSQLiteHarness(tb testing.TB, opts ...HarnessOption) *SQLiteHarness {
	tb.Helper()

	options := harnessOptions{tick: time.Millisecond}
	for _, opt := range opts {
		opt(&options)
	}
	if options.clock == nil {
		options.clock = NewClock(time.Time{})
	}
	if options.ids == nil {
		options.ids = NewIDGenerator("id")
	}

	path := filepath.Join(tb.TempDir(), "mcptix.db")
	storage, err := sqlite.Open(context.Background(), sqlite.Options{
		SQLite:       migration.TempFileTestSQLiteConfig(path),
		Capabilities: options.caps,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          options.clock.TickFunc(options.tick),
		IDGenerator:  options.ids.NextFunc(),
	})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: storage,
		Tickets: storage,
		Clock:   options.clock,
		IDs:     options.ids,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
