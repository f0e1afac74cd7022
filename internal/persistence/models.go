package persistence

import (
	"time"

	"github.com/samber/mo"

	"github.com/example/item-scheduler/internal/recurrence"
)

// Item is one row of the items table. It stores series definitions, one-off
// items and override occurrences alike; overrides carry ParentID and
// OriginalDate.
type Item struct {
	ID                  string
	Title               string
	Description         string
	Location            string
	Category            string
	Priority            string
	Kind                string
	AnchorDate          recurrence.Date
	AnchorEndDate       recurrence.Date
	DueTime             *recurrence.TimeOfDay
	EndTime             *recurrence.TimeOfDay
	Recurrence          recurrence.Rule
	ReminderOffsets     mo.Option[[]int]
	IsBacklog           bool
	VisibleToDependents bool
	AssigneeIDs         []string
	IsCompleted         bool
	CompletionNote      string
	CompletedAt         *time.Time
	ParentID            string
	OriginalDate        recurrence.Date
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsOverride reports whether the row replaces one occurrence of a series.
func (i Item) IsOverride() bool {
	return i.ParentID != ""
}

// Exception is one suppressed date of a series.
type Exception struct {
	SeriesID  string
	Date      recurrence.Date
	CreatedAt time.Time
}
