package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samber/mo"

	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/recurrence"
)

var itemCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date parses a YYYY-MM-DD literal and panics on malformed input.
func Date(value string) recurrence.Date {
	d, err := recurrence.ParseDate(value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: %v", err))
	}
	return d
}

// Dates parses several YYYY-MM-DD literals.
func Dates(values ...string) []recurrence.Date {
	out := make([]recurrence.Date, len(values))
	for i, value := range values {
		out[i] = Date(value)
	}
	return out
}

// TimeOfDay returns a pointer to an HH:MM wall-clock time.
func TimeOfDay(hour, minute int) *recurrence.TimeOfDay {
	return &recurrence.TimeOfDay{Hour: hour, Minute: minute}
}

// ItemFixture represents a deterministic item that can be materialised for
// application or persistence tests.
type ItemFixture struct {
	ID                  string
	Title               string
	Description         string
	Location            string
	Category            string
	Priority            application.Priority
	Kind                application.ItemKind
	AnchorDate          recurrence.Date
	AnchorEndDate       recurrence.Date
	DueTime             *recurrence.TimeOfDay
	EndTime             *recurrence.TimeOfDay
	Recurrence          recurrence.Rule
	ReminderOffsets     mo.Option[[]int]
	IsBacklog           bool
	VisibleToDependents bool
	AssigneeIDs         []string
	CreatedAt           time.Time
}

// ItemOption mutates an ItemFixture.
type ItemOption func(*ItemFixture)

// NewItemFixture returns a weekly series anchored on Monday 2024-01-01.
func NewItemFixture(opts ...ItemOption) ItemFixture {
	seq := atomic.AddUint64(&itemCounter, 1)
	fixture := ItemFixture{
		ID:                  fmt.Sprintf("item-%d", seq),
		Title:               fmt.Sprintf("Item %d", seq),
		Priority:            application.PriorityMedium,
		Kind:                application.KindEvent,
		AnchorDate:          Date("2024-01-01"),
		Recurrence:          recurrence.Weekly{},
		VisibleToDependents: true,
		CreatedAt:           ReferenceTime(),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithItemID overrides the fixture identifier.
func WithItemID(id string) ItemOption {
	return func(f *ItemFixture) {
		f.ID = id
	}
}

// WithTitle overrides the title.
func WithTitle(title string) ItemOption {
	return func(f *ItemFixture) {
		f.Title = title
	}
}

// WithRule sets the recurrence rule and anchor date.
func WithRule(rule recurrence.Rule, anchor string) ItemOption {
	return func(f *ItemFixture) {
		f.Recurrence = rule
		f.AnchorDate = Date(anchor)
	}
}

// WithSpan makes each occurrence last until end.
func WithSpan(end string) ItemOption {
	return func(f *ItemFixture) {
		f.AnchorEndDate = Date(end)
	}
}

// WithDueTime sets the due time.
func WithDueTime(hour, minute int) ItemOption {
	return func(f *ItemFixture) {
		f.DueTime = TimeOfDay(hour, minute)
	}
}

// WithReminderOffsets sets explicit reminder offsets.
func WithReminderOffsets(offsets ...int) ItemOption {
	return func(f *ItemFixture) {
		f.ReminderOffsets = mo.Some(offsets)
	}
}

// WithAssignees sets the assignee ids.
func WithAssignees(ids ...string) ItemOption {
	return func(f *ItemFixture) {
		f.AssigneeIDs = ids
	}
}

// AsBacklog removes the date and recurrence.
func AsBacklog() ItemOption {
	return func(f *ItemFixture) {
		f.IsBacklog = true
		f.AnchorDate = recurrence.Date{}
		f.Recurrence = recurrence.Once{}
	}
}

// Input converts the fixture into service input.
func (f ItemFixture) Input() application.ItemInput {
	return application.ItemInput{
		Title:               f.Title,
		Description:         f.Description,
		Location:            f.Location,
		Category:            f.Category,
		Priority:            f.Priority,
		Kind:                f.Kind,
		AnchorDate:          f.AnchorDate,
		AnchorEndDate:       f.AnchorEndDate,
		DueTime:             f.DueTime,
		EndTime:             f.EndTime,
		Recurrence:          f.Recurrence,
		ReminderOffsets:     f.ReminderOffsets,
		IsBacklog:           f.IsBacklog,
		VisibleToDependents: f.VisibleToDependents,
		AssigneeIDs:         cloneStrings(f.AssigneeIDs),
	}
}

// PersistenceItem converts the fixture into a repository row.
func (f ItemFixture) PersistenceItem() persistence.Item {
	return persistence.Item{
		ID:                  f.ID,
		Title:               f.Title,
		Description:         f.Description,
		Location:            f.Location,
		Category:            f.Category,
		Priority:            string(f.Priority),
		Kind:                string(f.Kind),
		AnchorDate:          f.AnchorDate,
		AnchorEndDate:       f.AnchorEndDate,
		DueTime:             f.DueTime,
		EndTime:             f.EndTime,
		Recurrence:          f.Recurrence,
		ReminderOffsets:     f.ReminderOffsets,
		IsBacklog:           f.IsBacklog,
		VisibleToDependents: f.VisibleToDependents,
		AssigneeIDs:         cloneStrings(f.AssigneeIDs),
		CreatedAt:           f.CreatedAt,
		UpdatedAt:           f.CreatedAt,
	}
}

// OverrideItem returns a repository row replacing originalDate of seriesID
// with a one-off item on newDate.
func OverrideItem(id, seriesID, originalDate, newDate string) persistence.Item {
	return persistence.Item{
		ID:           id,
		Title:        "Override " + id,
		Priority:     string(application.PriorityMedium),
		Kind:         string(application.KindEvent),
		AnchorDate:   Date(newDate),
		Recurrence:   recurrence.Once{},
		ParentID:     seriesID,
		OriginalDate: Date(originalDate),
		CreatedAt:    ReferenceTime(),
		UpdatedAt:    ReferenceTime(),
	}
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
