package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScanMigrations(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"002_add_index.sql":      {Data: []byte("CREATE INDEX idx_a ON a(name);")},
		"001_initial_schema.sql": {Data: []byte("-- Description: Create table a\nCREATE TABLE a (id TEXT PRIMARY KEY, name TEXT);")},
		"README.md":              {Data: []byte("not a migration")},
	}

	migrations, err := NewScanner().ScanMigrations(fsys)
	if err != nil {
		t.Fatalf("ScanMigrations returned error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Fatalf("migrations not ordered by version: %+v", migrations)
	}
	if migrations[0].Description != "Create table a" {
		t.Fatalf("expected description from header comment, got %q", migrations[0].Description)
	}
	if migrations[1].Description != "add index" {
		t.Fatalf("expected description from filename, got %q", migrations[1].Description)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Fatalf("expected distinct checksums, got %q and %q", migrations[0].Checksum, migrations[1].Checksum)
	}
}

func TestScanMigrationsRejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "bad filename",
			fsys: fstest.MapFS{"initial.sql": {Data: []byte("SELECT 1;")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "comment only",
			fsys: fstest.MapFS{"001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "unbalanced parentheses",
			fsys: fstest.MapFS{"001_broken.sql": {Data: []byte("CREATE TABLE a (id TEXT;")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"001_a.sql":  {Data: []byte("SELECT 1;")},
				"0001_b.sql": {Data: []byte("SELECT 2;")},
			},
			want: ErrDuplicateVersion,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewScanner().ScanMigrations(tc.fsys)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseSQL(t *testing.T) {
	t.Parallel()

	statements := parseSQL(`
-- header
CREATE TABLE a (id TEXT);

-- second
CREATE INDEX idx_a ON a(id);
`)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(statements), statements)
	}
	if statements[1] != "CREATE INDEX idx_a ON a(id)" {
		t.Fatalf("unexpected statement %q", statements[1])
	}
}
