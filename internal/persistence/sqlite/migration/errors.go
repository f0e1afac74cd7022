package migration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMigrationFailed      = errors.New("migration execution failed")
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	// ErrVersionConflict means the version sequence has a gap or the database
	// records a version this binary does not ship.
	ErrVersionConflict  = errors.New("migration version conflict")
	ErrInvalidVersion   = errors.New("invalid migration version")
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrChecksumMismatch means an applied migration file was edited later.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// MigrationError names the migration file and step a failure happened in.
type MigrationError struct {
	Version   string
	FilePath  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migration %s: %s: %v", e.FilePath, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.FilePath, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func NewMigrationError(version, filePath, operation string, err error) *MigrationError {
	return &MigrationError{
		Version:   version,
		FilePath:  filePath,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError is a failed statement against the migration bookkeeping or a
// migration body. Query is empty for transaction control failures.
type DatabaseError struct {
	Version   string
	Query     string
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	var b strings.Builder
	b.WriteString("migration database error")
	if e.Version != "" {
		fmt.Fprintf(&b, " (version %s)", e.Version)
	}
	fmt.Fprintf(&b, ": %s: %v", e.Operation, e.Err)
	if query := strings.Join(strings.Fields(e.Query), " "); query != "" {
		fmt.Fprintf(&b, " [query: %s]", query)
	}
	return b.String()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func NewDatabaseError(version, query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Version:   version,
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}
