package ical_test

import (
	"bytes"
	"testing"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/ical"
	"github.com/example/item-scheduler/internal/recurrence"
)

func date(t *testing.T, value string) recurrence.Date {
	t.Helper()
	d, err := recurrence.ParseDate(value)
	require.NoError(t, err)
	return d
}

func datesOf(times []time.Time) []recurrence.Date {
	out := make([]recurrence.Date, 0, len(times))
	for _, tm := range times {
		out = append(out, recurrence.DateOf(tm))
	}
	return out
}

func TestRuleOptionAgreesWithProjector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rule   recurrence.Rule
		anchor string
	}{
		{name: "daily", rule: recurrence.Daily{}, anchor: "2024-01-01"},
		{name: "weekly", rule: recurrence.Weekly{}, anchor: "2024-01-03"},
		{name: "biweekly", rule: recurrence.Biweekly{}, anchor: "2024-01-05"},
		{name: "custom interval", rule: recurrence.Custom{IntervalDays: 10}, anchor: "2024-02-20"},
		{name: "custom weekly off anchor", rule: recurrence.CustomWeekly{Days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}}, anchor: "2024-01-02"},
		{name: "monthly month end", rule: recurrence.Monthly{}, anchor: "2024-01-31"},
		{name: "monthly thirtieth", rule: recurrence.Monthly{}, anchor: "2024-01-30"},
		{name: "monthly mid month", rule: recurrence.Monthly{}, anchor: "2024-01-15"},
		{name: "quarterly month end", rule: recurrence.Quarterly{}, anchor: "2024-01-31"},
		{name: "annually leap day", rule: recurrence.Annually{}, anchor: "2024-02-29"},
		{name: "annually", rule: recurrence.Annually{}, anchor: "2024-07-04"},
	}

	start := date(t, "2024-01-01")
	end := date(t, "2027-12-31")

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			anchor := date(t, tc.anchor)
			want, err := recurrence.Project(tc.rule, anchor, start, end, nil)
			require.NoError(t, err)

			option, err := ical.RuleOption(tc.rule, anchor)
			require.NoError(t, err)

			generated, err := rrule.NewRRule(*option)
			require.NoError(t, err)
			assert.Equal(t, want, datesOf(generated.Between(start.In(time.UTC), end.In(time.UTC), true)))

			// The serialized rule must expand the same way.
			parsed, err := rrule.StrToRRule(option.RRuleString())
			require.NoError(t, err)
			parsed.DTStart(option.Dtstart)
			assert.Equal(t, want, datesOf(parsed.Between(start.In(time.UTC), end.In(time.UTC), true)))
		})
	}
}

func TestRuleOptionRejectsOneOff(t *testing.T) {
	t.Parallel()

	_, err := ical.RuleOption(recurrence.Once{}, date(t, "2024-01-01"))
	assert.Error(t, err)

	_, err = ical.RuleOption(recurrence.Custom{}, date(t, "2024-01-01"))
	assert.Error(t, err)

	_, err = ical.RuleOption(recurrence.Weekly{}, recurrence.Date{})
	assert.ErrorIs(t, err, recurrence.ErrMissingAnchor)
}

func TestRuleOptionClampsMonthEnd(t *testing.T) {
	t.Parallel()

	option, err := ical.RuleOption(recurrence.Monthly{}, date(t, "2024-01-31"))
	require.NoError(t, err)

	rule := option.RRuleString()
	assert.Contains(t, rule, "FREQ=MONTHLY")
	assert.Contains(t, rule, "BYMONTHDAY=31,-1")
	assert.Contains(t, rule, "BYSETPOS=1")
}

func exportAndDecode(t *testing.T, exporter *ical.Exporter, cal application.Calendar) *goical.Calendar {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, exporter.Export(&buf, cal))
	assert.Contains(t, buf.String(), "BEGIN:VCALENDAR")

	decoded, err := goical.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	return decoded
}

func components(cal *goical.Calendar, name string) []*goical.Component {
	var out []*goical.Component
	for _, child := range cal.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

func propValue(comp *goical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}

func TestExportSeriesWithExceptions(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	exporter := ical.NewExporter(time.UTC, ical.WithClock(func() time.Time { return stamp }))

	exceptions := recurrence.ExceptionIndex{}
	exceptions.Replace(date(t, "2024-01-08"), "override-1")
	exceptions.Skip(date(t, "2024-01-15"))

	cal := application.Calendar{
		Series: []application.Series{{
			ID:         "series-1",
			Details:    application.Details{Title: "Team sync", Priority: application.PriorityHigh, Kind: application.KindEvent},
			AnchorDate: date(t, "2024-01-01"),
			Recurrence: recurrence.Weekly{},
		}},
		Overrides: []application.OverrideOccurrence{{
			ID:           "override-1",
			SeriesID:     "series-1",
			OriginalDate: date(t, "2024-01-08"),
			Date:         date(t, "2024-01-09"),
			Details:      application.Details{Title: "Team sync (moved)", Kind: application.KindEvent},
		}},
		Exceptions: map[string]recurrence.ExceptionIndex{"series-1": exceptions},
	}

	decoded := exportAndDecode(t, exporter, cal)
	assert.Equal(t, ical.ProductID, propValue(decoded.Component, goical.PropProductID))

	events := components(decoded, goical.CompEvent)
	require.Len(t, events, 2)

	series, override := events[0], events[1]
	if propValue(series, goical.PropRecurrenceID) != "" {
		series, override = override, series
	}

	assert.Equal(t, "series-1", propValue(series, goical.PropUID))
	assert.Contains(t, propValue(series, goical.PropRecurrenceRule), "FREQ=WEEKLY")
	assert.Equal(t, "20240101", propValue(series, goical.PropDateTimeStart))
	assert.Equal(t, "20240102", propValue(series, goical.PropDateTimeEnd))
	assert.Equal(t, "1", propValue(series, goical.PropPriority))
	assert.Equal(t, "20240102T030405Z", propValue(series, goical.PropDateTimeStamp))

	// Only the skipped date is excluded; the replaced one has its override.
	exdates := series.Props.Values(goical.PropExceptionDates)
	require.Len(t, exdates, 1)
	assert.Equal(t, "20240115", exdates[0].Value)

	assert.Equal(t, "series-1", propValue(override, goical.PropUID))
	assert.Equal(t, "20240108", propValue(override, goical.PropRecurrenceID))
	assert.Equal(t, "20240109", propValue(override, goical.PropDateTimeStart))
	assert.Equal(t, "Team sync (moved)", propValue(override, goical.PropSummary))
	assert.Empty(t, propValue(override, goical.PropRecurrenceRule))
}

func TestExportExcludesOverridesOutsideTheDocument(t *testing.T) {
	t.Parallel()

	exceptions := recurrence.ExceptionIndex{}
	exceptions.Replace(date(t, "2024-03-04"), "override-elsewhere")

	cal := application.Calendar{
		Series: []application.Series{{
			ID:         "series-1",
			Details:    application.Details{Title: "Review", Kind: application.KindEvent},
			AnchorDate: date(t, "2024-01-01"),
			Recurrence: recurrence.Weekly{},
		}},
		Exceptions: map[string]recurrence.ExceptionIndex{"series-1": exceptions},
	}

	decoded := exportAndDecode(t, ical.NewExporter(time.UTC), cal)
	events := components(decoded, goical.CompEvent)
	require.Len(t, events, 1)

	exdates := events[0].Props.Values(goical.PropExceptionDates)
	require.Len(t, exdates, 1)
	assert.Equal(t, "20240304", exdates[0].Value)
}

func TestExportTimedReminderAsTodo(t *testing.T) {
	t.Parallel()

	completedAt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	cal := application.Calendar{
		Series: []application.Series{{
			ID: "reminder-1",
			Details: application.Details{
				Title:           "Pay rent",
				Kind:            application.KindReminder,
				Priority:        application.PriorityLow,
				DueTime:         &recurrence.TimeOfDay{Hour: 9, Minute: 0},
				ReminderOffsets: mo.Some([]int{0, 30}),
			},
			AnchorDate: date(t, "2024-01-31"),
			Recurrence: recurrence.Monthly{},
			Completion: application.Completion{IsCompleted: true, CompletedAt: &completedAt},
		}},
	}

	decoded := exportAndDecode(t, ical.NewExporter(time.UTC), cal)
	assert.Empty(t, components(decoded, goical.CompEvent))

	todos := components(decoded, goical.CompToDo)
	require.Len(t, todos, 1)
	todo := todos[0]

	assert.Equal(t, "20240131T090000Z", propValue(todo, goical.PropDateTimeStart))
	assert.Empty(t, propValue(todo, goical.PropDue))
	assert.Contains(t, propValue(todo, goical.PropRecurrenceRule), "BYMONTHDAY=31,-1")
	assert.Equal(t, "9", propValue(todo, goical.PropPriority))
	assert.Equal(t, "COMPLETED", propValue(todo, goical.PropStatus))
	assert.Equal(t, "20240101T100000Z", propValue(todo, goical.PropCompleted))

	alarms := components(&goical.Calendar{Component: todo}, goical.CompAlarm)
	require.Len(t, alarms, 2)
	assert.Equal(t, "PT0S", propValue(alarms[0], goical.PropTrigger))
	assert.Equal(t, "-PT30M", propValue(alarms[1], goical.PropTrigger))
}

func TestExportMultiDayEventSpan(t *testing.T) {
	t.Parallel()

	cal := application.Calendar{
		Series: []application.Series{{
			ID:            "trip",
			Details:       application.Details{Title: "Offsite", Kind: application.KindEvent},
			AnchorDate:    date(t, "2024-05-10"),
			AnchorEndDate: date(t, "2024-05-12"),
			Recurrence:    recurrence.Once{},
		}},
	}

	decoded := exportAndDecode(t, ical.NewExporter(time.UTC), cal)
	events := components(decoded, goical.CompEvent)
	require.Len(t, events, 1)

	assert.Equal(t, "20240510", propValue(events[0], goical.PropDateTimeStart))
	assert.Equal(t, "20240513", propValue(events[0], goical.PropDateTimeEnd))
	assert.Empty(t, propValue(events[0], goical.PropRecurrenceRule))
}
