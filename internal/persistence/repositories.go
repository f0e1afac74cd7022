package persistence

import (
	"context"
	"time"

	"github.com/example/item-scheduler/internal/recurrence"
)

// ItemFilter narrows item queries. Zero dates leave that side unbounded.
type ItemFilter struct {
	// From excludes one-off items whose span ends before it.
	From recurrence.Date
	// To excludes items whose anchor falls after it.
	To recurrence.Date
	// Dated excludes items without an anchor date.
	Dated bool
	// ParentID restricts the result to overrides of one series.
	ParentID string
}

// ItemMutator receives the stored row inside the write transaction and
// returns the row to persist.
type ItemMutator func(current Item) (Item, error)

// ItemRepository stores series, one-off items and override rows.
type ItemRepository interface {
	CreateItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, id string) (Item, error)
	// UpdateItem rewrites a row through mutate. Rewriting a series drops the
	// exceptions and overrides its new rule and anchor no longer produce.
	UpdateItem(ctx context.Context, id string, mutate ItemMutator) (Item, error)
	// DeleteItem removes the row, its exceptions and the overrides that
	// reference it.
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	SetCompleted(ctx context.Context, id string, completed bool, note string, at time.Time) (Item, error)
}

// ExceptionRepository maintains the per-series exception index. Every method
// commits its exception and override changes as one unit.
type ExceptionRepository interface {
	// ListExceptions returns the exception index of each requested series.
	ListExceptions(ctx context.Context, seriesIDs []string) (map[string]recurrence.ExceptionIndex, error)
	// SkipOccurrence records an exception for date and deletes any override
	// replacing it, returning the deleted override id.
	SkipOccurrence(ctx context.Context, seriesID string, date recurrence.Date) (string, error)
	// SaveOverride records the exception for override.OriginalDate and inserts
	// the override, or rewrites the existing override for that date in place.
	SaveOverride(ctx context.Context, override Item) (Item, error)
	// RestoreOccurrence deletes the override with the given id together with
	// its exception so the original date projects again.
	RestoreOccurrence(ctx context.Context, overrideID string) error
}
