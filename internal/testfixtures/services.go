package testfixtures

import (
	"log/slog"
	"testing"
	"time"

	"github.com/example/item-scheduler/internal/alerts"
	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/recurrence"
)

// JST is the zone services built by the factory interpret dates in.
var JST = time.FixedZone("JST", 9*60*60)

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

// ItemServiceDeps captures dependencies for constructing an item service.
// Nil repositories are replaced by a fresh SQLite harness.
type ItemServiceDeps struct {
	Items          persistence.ItemRepository
	Exceptions     persistence.ExceptionRepository
	DefaultOffsets []int
	MaxOccurrences int
	MaxRangeDays   int
	Logger         *slog.Logger
}

// NewItemService builds an item service on the factory clock and ids.
func (f *ServiceFactory) NewItemService(tb testing.TB, deps ItemServiceDeps) *application.ItemService {
	tb.Helper()

	if deps.Items == nil || deps.Exceptions == nil {
		harness := NewSQLiteHarness(tb)
		if deps.Items == nil {
			deps.Items = harness.Items
		}
		if deps.Exceptions == nil {
			deps.Exceptions = harness.Exceptions
		}
	}

	engine, err := recurrence.NewEngine(recurrence.EngineConfig{
		Location:       JST,
		MaxOccurrences: deps.MaxOccurrences,
	})
	if err != nil {
		tb.Fatalf("failed to build engine: %v", err)
	}
	tb.Cleanup(engine.Close)

	var defaults alerts.DefaultOffsetProvider
	if deps.DefaultOffsets != nil {
		defaults = alerts.StaticOffsets(deps.DefaultOffsets)
	}

	svc, err := application.NewItemService(
		deps.Items,
		deps.Exceptions,
		engine,
		alerts.NewResolver(JST, defaults),
		application.WithIDGenerator(f.IDGenerator.NextFunc()),
		application.WithClock(f.Clock.NowFunc()),
		application.WithLogger(deps.Logger),
		application.WithMaxRangeDays(deps.MaxRangeDays),
	)
	if err != nil {
		tb.Fatalf("failed to build item service: %v", err)
	}
	return svc
}
