package testfixtures

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ownlytics/mcptix-sub000/internal/application"
	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// TicketServiceDeps captures dependencies for constructing a ticket service.
type TicketServiceDeps struct {
	// Store defaults to a migrated SQLite harness driven by the factory clock
	// and id generator.
	Store  persistence.TicketStore
	Logger *slog.Logger
}

// NewTicketService builds a ticket service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewTicketService(tb testing.TB, deps TicketServiceDeps) *application.TicketService {
	tb.Helper()

	store := deps.Store
	if store == nil {
		store = NewSQLiteHarness(tb,
			WithHarnessClock(f.Clock),
			WithHarnessIDs(f.IDGenerator),
		).Tickets
	}
	return application.NewTicketServiceWithLogger(store, deps.Logger)
}
