package application

import (
	"errors"
	"sort"
	"strings"

	"github.com/example/item-scheduler/internal/persistence"
)

var (
	// ErrNotFound is returned when the requested item or occurrence does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidScope is returned when an occurrence-scoped mutation targets an
	// item that does not recur.
	ErrInvalidScope = errors.New("application: operation requires a recurring series")
	// ErrConflict is returned when a concurrent write already claimed the
	// occurrence slot.
	ErrConflict = errors.New("application: conflicting occurrence")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func fieldError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

func mapItemRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrConflict
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		// The parent series disappeared underneath the write.
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return fieldError("item", "item violates a storage constraint")
	}
	return err
}
