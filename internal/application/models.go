package application

import (
	"time"

	"github.com/samber/mo"

	"github.com/example/item-scheduler/internal/recurrence"
)

// Priority ranks items; high sorts first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the ordinal of p, lower ranks first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ItemKind distinguishes calendar events from reminders.
type ItemKind string

const (
	KindEvent    ItemKind = "event"
	KindReminder ItemKind = "reminder"
)

// Details are the user-facing fields shared by series and their overrides.
type Details struct {
	Title           string
	Description     string
	Location        string
	Category        string
	Priority        Priority
	Kind            ItemKind
	DueTime         *recurrence.TimeOfDay
	EndTime         *recurrence.TimeOfDay
	ReminderOffsets mo.Option[[]int]
	AssigneeIDs     []string
}

// Completion is the completion state of one stored row.
type Completion struct {
	IsCompleted bool
	Note        string
	CompletedAt *time.Time
}

// Series is a persisted item definition. A Once rule makes it a one-off item.
type Series struct {
	ID string
	Details
	AnchorDate          recurrence.Date
	AnchorEndDate       recurrence.Date
	Recurrence          recurrence.Rule
	IsBacklog           bool
	VisibleToDependents bool
	Completion
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the series repeats.
func (s Series) IsRecurring() bool {
	return recurrence.IsRecurring(s.Recurrence)
}

// SpanDays returns how many days past its start each occurrence lasts.
func (s Series) SpanDays() int {
	return spanDays(s.AnchorDate, s.AnchorEndDate)
}

// OverrideOccurrence is a detached instance that replaces one date of a series.
type OverrideOccurrence struct {
	ID           string
	SeriesID     string
	OriginalDate recurrence.Date
	Date         recurrence.Date
	EndDate      recurrence.Date
	Details
	// VisibleToDependents is copied from the series when the override is made.
	VisibleToDependents bool
	Completion
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectedOccurrence is one computed date of a series. It is never stored.
type ProjectedOccurrence struct {
	SeriesID string
	Date     recurrence.Date
	EndDate  recurrence.Date
	IsAnchor bool
}

// ItemRecord is a stored row: exactly one of Series and Override is set.
type ItemRecord struct {
	Series   *Series
	Override *OverrideOccurrence
}

// ID returns the id of whichever row the record holds.
func (r ItemRecord) ID() string {
	if r.Override != nil {
		return r.Override.ID
	}
	if r.Series != nil {
		return r.Series.ID
	}
	return ""
}

// EntrySource identifies where an agenda entry came from.
type EntrySource string

const (
	// SourceSeries entries are projected from a recurring series.
	SourceSeries EntrySource = "series"
	// SourceSingle entries are one-off items.
	SourceSingle EntrySource = "single"
	// SourceOverride entries are detached occurrences.
	SourceOverride EntrySource = "override"
)

// AgendaEntry is one row of a projected range.
type AgendaEntry struct {
	Source   EntrySource
	ItemID   string
	SeriesID string
	Date     recurrence.Date
	EndDate  recurrence.Date
	// IsAnchor is set for the occurrence on the series anchor date.
	IsAnchor bool
	// OriginalDate is the replaced date of an override entry.
	OriginalDate recurrence.Date
	Details
	Completion
	Alerts []time.Time
}

// Agenda is the result of ProjectRange.
type Agenda struct {
	From    recurrence.Date
	To      recurrence.Date
	Entries []AgendaEntry
	// Truncated is set when a series produced more occurrences than the
	// configured limit.
	Truncated bool
}

// ItemInput captures caller provided item fields.
type ItemInput struct {
	Title               string
	Description         string
	Location            string
	Category            string
	Priority            Priority
	Kind                ItemKind
	AnchorDate          recurrence.Date
	AnchorEndDate       recurrence.Date
	DueTime             *recurrence.TimeOfDay
	EndTime             *recurrence.TimeOfDay
	Recurrence          recurrence.Rule
	ReminderOffsets     mo.Option[[]int]
	IsBacklog           bool
	VisibleToDependents bool
	AssigneeIDs         []string
}

// CreateItemParams wraps the data required to create an item.
type CreateItemParams struct {
	Input ItemInput
}

// UpdateItemParams wraps the data required to rewrite a stored item.
type UpdateItemParams struct {
	ItemID string
	// ViewedDate is the occurrence date the caller was looking at, if any.
	// When it is not the stored anchor the anchor is left in place.
	ViewedDate recurrence.Date
	Input      ItemInput
}

// OccurrenceInput holds the fields an edited occurrence may change.
type OccurrenceInput struct {
	Title           string
	Description     string
	Location        string
	Category        string
	Priority        Priority
	Kind            ItemKind
	DueTime         *recurrence.TimeOfDay
	EndTime         *recurrence.TimeOfDay
	ReminderOffsets mo.Option[[]int]
	// AssigneeIDs replaces the assignment only when present.
	AssigneeIDs mo.Option[[]string]
}

// EditOccurrenceParams wraps an occurrence-scoped edit.
type EditOccurrenceParams struct {
	SeriesID     string
	OriginalDate recurrence.Date
	// NewDate defaults to OriginalDate.
	NewDate recurrence.Date
	// NewEndDate defaults to NewDate shifted by the series span.
	NewEndDate recurrence.Date
	Fields     OccurrenceInput
}

// DeleteOccurrenceParams wraps an occurrence-scoped delete.
type DeleteOccurrenceParams struct {
	SeriesID string
	Date     recurrence.Date
}

// ProjectRangeParams bounds an agenda query.
type ProjectRangeParams struct {
	From             recurrence.Date
	To               recurrence.Date
	IncludeCompleted bool
}

func spanDays(start, end recurrence.Date) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return end.DaysSince(start)
}
