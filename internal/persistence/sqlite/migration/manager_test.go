package migration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
)

func newTestManager(t *testing.T, fsys fstest.MapFS) (Manager, *SQLiteExecutor) {
	t.Helper()

	db, err := Open(InMemoryTestSQLiteConfig())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	executor := NewSQLiteExecutor(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(NewScanner(), executor, fsys, logger), executor
}

func TestRunMigrationsAppliesPendingOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fsys := fstest.MapFS{
		"001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
		"002_seed.sql":   {Data: []byte("INSERT INTO a (id) VALUES ('x');\nINSERT INTO a (id) VALUES ('y');")},
	}
	manager, executor := newTestManager(t, fsys)

	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("second RunMigrations returned error: %v", err)
	}

	applied, err := executor.GetAppliedVersions(ctx)
	if err != nil {
		t.Fatalf("GetAppliedVersions returned error: %v", err)
	}
	if len(applied) != 2 || applied[1].Version != "002" {
		t.Fatalf("unexpected applied versions: %+v", applied)
	}

	var count int
	if err := executor.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM a").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected seed to run once, got %d rows", count)
	}

	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus returned error: %v", err)
	}
	if status.CurrentVersion != "002" || status.PendingCount != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRunMigrationsRollsBackFailedMigration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fsys := fstest.MapFS{
		"001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE b (id TEXT);\nINSERT INTO missing_table VALUES (1);")},
	}
	manager, executor := newTestManager(t, fsys)

	err := manager.RunMigrations(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected a DatabaseError in the chain, got %v", err)
	}
	if dbErr.Version != "002" || dbErr.Operation != "execute statement 2" || !strings.Contains(dbErr.Query, "missing_table") {
		t.Fatalf("unexpected database error: %+v", dbErr)
	}
	if !strings.Contains(err.Error(), "version 002") {
		t.Fatalf("expected the version in the message, got %q", err.Error())
	}

	applied, err := executor.GetAppliedVersions(ctx)
	if err != nil {
		t.Fatalf("GetAppliedVersions returned error: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected only 001 recorded, got %+v", applied)
	}

	var name string
	err = executor.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE name = 'b'").Scan(&name)
	if err == nil {
		t.Fatal("expected table b to be rolled back")
	}
}

func TestGetPendingMigrationsDetectsGaps(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
		"003_later.sql":  {Data: []byte("CREATE TABLE c (id TEXT);")},
	}
	manager, _ := newTestManager(t, fsys)

	if _, err := manager.GetPendingMigrations(context.Background()); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestGetMigrationStatusDetectsEditedMigration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fsys := fstest.MapFS{"001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
	manager, _ := newTestManager(t, fsys)
	if err := manager.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}

	fsys["001_create.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT, extra TEXT);")}
	if _, err := manager.GetMigrationStatus(ctx); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestSQLiteConfigValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultSQLiteConfig("/tmp/x.db").Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	bad := SQLiteConfig{JournalMode: "SIDEWAYS", MaxOpenConns: -1}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
