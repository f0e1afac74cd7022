package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/persistence/sqlite"
	"github.com/example/item-scheduler/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated database in a per-test temp directory with the
// item and exception repositories opened on it.
type SQLiteHarness struct {
	Storage    *sqlite.Storage
	Items      persistence.ItemRepository
	Exceptions persistence.ExceptionRepository
}

// NewSQLiteHarness opens and migrates a fresh database. It is closed when the
// test finishes.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	storage, err := sqlite.Open(migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Storage:    storage,
		Items:      storage.Items,
		Exceptions: storage.Exceptions,
	}
}

// Seed stores each fixture as a series row and returns the stored rows.
func (h *SQLiteHarness) Seed(tb testing.TB, fixtures ...ItemFixture) []persistence.Item {
	tb.Helper()

	ctx := context.Background()
	stored := make([]persistence.Item, 0, len(fixtures))
	for _, fixture := range fixtures {
		if err := h.Items.CreateItem(ctx, fixture.PersistenceItem()); err != nil {
			tb.Fatalf("failed to seed %s: %v", fixture.ID, err)
		}
		item, err := h.Items.GetItem(ctx, fixture.ID)
		if err != nil {
			tb.Fatalf("failed to reload %s: %v", fixture.ID, err)
		}
		stored = append(stored, item)
	}
	return stored
}
