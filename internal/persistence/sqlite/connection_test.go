package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/persistence/sqlite/migration"
)

func TestErrorMapper_MapsDriverErrors(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	mapper := NewErrorMapper()

	if err := mapper.MapError(sql.ErrNoRows); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	db := storage.pool.DB()
	if _, err := db.ExecContext(ctx, `CREATE TABLE probe (id TEXT PRIMARY KEY, n INTEGER NOT NULL CHECK (n >= 0))`); err != nil {
		t.Fatalf("create probe table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO probe (id, n) VALUES ('a', 1)`); err != nil {
		t.Fatalf("seed probe: %v", err)
	}

	tests := []struct {
		name  string
		query string
		want  error
	}{
		{name: "duplicate key", query: `INSERT INTO probe (id, n) VALUES ('a', 2)`, want: persistence.ErrDuplicate},
		{name: "check", query: `INSERT INTO probe (id, n) VALUES ('b', -1)`, want: persistence.ErrConstraintViolation},
		{name: "not null", query: `INSERT INTO probe (id, n) VALUES ('c', NULL)`, want: persistence.ErrConstraintViolation},
	}
	for _, tc := range tests {
		_, err := db.ExecContext(ctx, tc.query)
		if err == nil {
			t.Fatalf("%s: expected driver error", tc.name)
		}
		if mapped := mapper.MapError(err); !errors.Is(mapped, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, mapped)
		}
	}

	plain := errors.New("disk I/O error")
	if mapper.MapError(plain) != plain {
		t.Fatal("unrelated errors must pass through unchanged")
	}
}

func TestRetryHelper_RetriesOnlyBusyErrors(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})
	ctx := context.Background()

	attempts := 0
	err := helper.WithRetry(ctx, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d", err, attempts)
	}

	attempts = 0
	err = helper.WithRetry(ctx, func() error {
		attempts++
		return errors.New("database is locked")
	})
	if err == nil || attempts != 3 {
		t.Fatalf("expected failure after 3 attempts, got %v after %d", err, attempts)
	}

	attempts = 0
	constraint := errors.New("UNIQUE constraint failed: items.id")
	if err := helper.WithRetry(ctx, func() error { attempts++; return constraint }); err != constraint || attempts != 1 {
		t.Fatalf("expected a single attempt for non-busy errors, got %v after %d", err, attempts)
	}
}

func TestRetryConfigFor_CapsDelayAtBusyTimeout(t *testing.T) {
	config := migration.DefaultSQLiteConfig("scheduler.db")
	config.BusyTimeout = 50 * time.Millisecond

	retry := RetryConfigFor(config)
	if retry.MaxDelay != 50*time.Millisecond || retry.InitialDelay != 50*time.Millisecond {
		t.Fatalf("unexpected retry config: %+v", retry)
	}

	config.BusyTimeout = time.Minute
	if got := RetryConfigFor(config); got != DefaultRetryConfig() {
		t.Fatalf("expected defaults for a long busy timeout, got %+v", got)
	}
}
