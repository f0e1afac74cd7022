package ical

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/recurrence"
)

// ProductID is written to the PRODID property of every exported calendar.
const ProductID = "-//item-scheduler//calendar export//EN"

// Exporter renders stored series and overrides as an iCalendar document.
type Exporter struct {
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the clock used for DTSTAMP.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for skipped components.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter creates an exporter writing timed values in loc.
func NewExporter(loc *time.Location, opts ...Option) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	exporter := &Exporter{
		location: loc,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(exporter)
	}
	return exporter
}

// Export encodes cal to w.
func (e *Exporter) Export(w io.Writer, cal application.Calendar) error {
	doc, err := e.Build(cal)
	if err != nil {
		return err
	}
	if err := goical.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

// Build converts cal into a VCALENDAR. Series become VEVENT or VTODO
// components carrying RRULE and EXDATE; overrides share their series UID and
// carry a RECURRENCE-ID naming the replaced date.
func (e *Exporter) Build(cal application.Calendar) (*goical.Calendar, error) {
	doc := goical.NewCalendar()
	doc.Props.SetText(goical.PropProductID, ProductID)
	doc.Props.SetText(goical.PropVersion, "2.0")

	stamp := e.now().UTC()
	parents := make(map[string]application.Series, len(cal.Series))
	replaced := make(map[string]map[recurrence.Date]struct{})
	for _, series := range cal.Series {
		parents[series.ID] = series
	}

	var overrides []*goical.Component
	for _, override := range cal.Overrides {
		parent, ok := parents[override.SeriesID]
		if !ok {
			e.logger.Debug("override exported without its series", "override_id", override.ID, "series_id", override.SeriesID)
		}
		overrides = append(overrides, e.overrideComponent(override, parent, ok, stamp))
		if ok {
			if replaced[override.SeriesID] == nil {
				replaced[override.SeriesID] = make(map[recurrence.Date]struct{})
			}
			replaced[override.SeriesID][override.OriginalDate] = struct{}{}
		}
	}

	for _, series := range cal.Series {
		comp, err := e.seriesComponent(series, cal.Exceptions[series.ID], replaced[series.ID], stamp)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", series.ID, err)
		}
		doc.Children = append(doc.Children, comp)
	}
	doc.Children = append(doc.Children, overrides...)
	return doc, nil
}

func (e *Exporter) seriesComponent(series application.Series, exceptions recurrence.ExceptionIndex, replaced map[recurrence.Date]struct{}, stamp time.Time) (*goical.Component, error) {
	start := series.AnchorDate
	end := series.AnchorDate.AddDays(series.SpanDays())

	comp := e.newComponent(series.ID, series.Details, series.Completion, stamp)
	setTimestamps(comp, series.CreatedAt, series.UpdatedAt)

	if series.IsRecurring() {
		option, err := RuleOption(series.Recurrence, series.AnchorDate)
		if err != nil {
			return nil, err
		}
		first := recurrence.DateOf(option.Dtstart)
		end = first.AddDays(series.SpanDays())
		start = first
		setRaw(comp.Props, goical.PropRecurrenceRule, option.RRuleString())

		for _, date := range exceptions.Dates() {
			if _, ok := replaced[date]; ok {
				continue
			}
			prop := goical.NewProp(goical.PropExceptionDates)
			e.setWhen(prop, date, series.DueTime)
			comp.Props.Add(prop)
		}
	}

	e.setSpan(comp, series.Details, start, end)
	return comp, nil
}

func (e *Exporter) overrideComponent(override application.OverrideOccurrence, parent application.Series, hasParent bool, stamp time.Time) *goical.Component {
	uid := override.ID
	if hasParent {
		uid = parent.ID
	}
	comp := e.newComponent(uid, override.Details, override.Completion, stamp)
	setTimestamps(comp, override.CreatedAt, override.UpdatedAt)

	if hasParent {
		prop := goical.NewProp(goical.PropRecurrenceID)
		e.setWhen(prop, override.OriginalDate, parent.DueTime)
		comp.Props.Set(prop)
	}

	end := override.EndDate
	if end.IsZero() || end.Before(override.Date) {
		end = override.Date
	}
	e.setSpan(comp, override.Details, override.Date, end)
	return comp
}

func (e *Exporter) newComponent(uid string, details application.Details, completion application.Completion, stamp time.Time) *goical.Component {
	name := goical.CompEvent
	if details.Kind == application.KindReminder {
		name = goical.CompToDo
	}

	comp := goical.NewComponent(name)
	comp.Props.SetText(goical.PropUID, uid)
	comp.Props.SetDateTime(goical.PropDateTimeStamp, stamp)
	comp.Props.SetText(goical.PropSummary, details.Title)
	if details.Description != "" {
		comp.Props.SetText(goical.PropDescription, details.Description)
	}
	if details.Location != "" {
		comp.Props.SetText(goical.PropLocation, details.Location)
	}
	if details.Category != "" {
		comp.Props.SetText(goical.PropCategories, details.Category)
	}
	setRaw(comp.Props, goical.PropPriority, strconv.Itoa(icalPriority(details.Priority)))

	if name == goical.CompToDo && completion.IsCompleted {
		setRaw(comp.Props, goical.PropStatus, "COMPLETED")
		if completion.CompletedAt != nil {
			comp.Props.SetDateTime(goical.PropCompleted, completion.CompletedAt.UTC())
		}
	}

	if offsets, ok := details.ReminderOffsets.Get(); ok {
		for _, minutes := range offsets {
			comp.Children = append(comp.Children, alarm(details.Title, minutes))
		}
	}
	return comp
}

// setSpan writes DTSTART and the end of the first occurrence: DTEND for
// events, DUE for reminders. All-day values use the exclusive next day.
func (e *Exporter) setSpan(comp *goical.Component, details application.Details, start, end recurrence.Date) {
	startProp := goical.NewProp(goical.PropDateTimeStart)
	e.setWhen(startProp, start, details.DueTime)
	comp.Props.Set(startProp)

	endName := goical.PropDateTimeEnd
	if comp.Name == goical.CompToDo {
		endName = goical.PropDue
	}

	endProp := goical.NewProp(endName)
	switch {
	case details.DueTime == nil:
		endProp.SetDate(end.AddDays(1).In(e.location))
	case details.EndTime != nil:
		endProp.SetDateTime(details.EndTime.On(end, e.location))
	case end.After(start):
		endProp.SetDateTime(details.DueTime.On(end, e.location))
	default:
		return
	}
	comp.Props.Set(endProp)
}

func (e *Exporter) setWhen(prop *goical.Prop, date recurrence.Date, at *recurrence.TimeOfDay) {
	if at == nil {
		prop.SetDate(date.In(e.location))
		return
	}
	prop.SetDateTime(at.On(date, e.location))
}

// RuleOption converts rule anchored at anchor into rrule options whose
// Dtstart is the first date the rule produces, at midnight UTC. Month-based
// rules anchored after the 28th clamp to the month end through BYSETPOS.
func RuleOption(rule recurrence.Rule, anchor recurrence.Date) (*rrule.ROption, error) {
	rule = recurrence.Normalize(rule)
	if !recurrence.IsRecurring(rule) {
		return nil, fmt.Errorf("rule %q does not repeat", rule.Kind())
	}
	if anchor.IsZero() {
		return nil, recurrence.ErrMissingAnchor
	}

	first, err := firstDate(rule, anchor)
	if err != nil {
		return nil, err
	}
	option := &rrule.ROption{Dtstart: first.In(time.UTC)}

	switch r := rule.(type) {
	case recurrence.Daily:
		option.Freq = rrule.DAILY
	case recurrence.Weekly:
		option.Freq = rrule.WEEKLY
	case recurrence.Biweekly:
		option.Freq = rrule.WEEKLY
		option.Interval = 2
	case recurrence.Custom:
		option.Freq = rrule.DAILY
		option.Interval = r.IntervalDays
	case recurrence.CustomWeekly:
		option.Freq = rrule.WEEKLY
		for _, day := range recurrence.DecodeWeekdays(recurrence.EncodeWeekdays(r.Days)) {
			option.Byweekday = append(option.Byweekday, weekdays[day])
		}
	case recurrence.Monthly:
		option.Freq = rrule.MONTHLY
		clampMonthDay(option, anchor)
	case recurrence.Quarterly:
		option.Freq = rrule.MONTHLY
		option.Interval = 3
		clampMonthDay(option, anchor)
	case recurrence.Annually:
		option.Freq = rrule.YEARLY
		if anchor.Day > 28 {
			option.Bymonth = []int{int(anchor.Month)}
		}
		clampMonthDay(option, anchor)
	default:
		return nil, recurrence.ErrUnknownKind
	}
	return option, nil
}

func clampMonthDay(option *rrule.ROption, anchor recurrence.Date) {
	if anchor.Day <= 28 {
		return
	}
	option.Bymonthday = []int{anchor.Day, -1}
	option.Bysetpos = []int{1}
}

// firstDate finds the first projected date, which differs from the anchor
// only for custom_weekly rules whose anchor weekday is not selected.
func firstDate(rule recurrence.Rule, anchor recurrence.Date) (recurrence.Date, error) {
	if _, ok := rule.(recurrence.CustomWeekly); !ok {
		return anchor, nil
	}
	dates, err := recurrence.Project(rule, anchor, anchor, anchor.AddDays(6), nil)
	if err != nil {
		return recurrence.Date{}, err
	}
	if len(dates) == 0 {
		return recurrence.Date{}, recurrence.ErrEmptyWeekdays
	}
	return dates[0], nil
}

var weekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func alarm(title string, minutes int) *goical.Component {
	comp := goical.NewComponent(goical.CompAlarm)
	setRaw(comp.Props, goical.PropAction, "DISPLAY")
	comp.Props.SetText(goical.PropDescription, title)
	setRaw(comp.Props, goical.PropTrigger, trigger(minutes))
	return comp
}

func trigger(minutes int) string {
	if minutes == 0 {
		return "PT0S"
	}
	return "-PT" + strconv.Itoa(minutes) + "M"
}

// icalPriority maps to the RFC 5545 scale where 1 is highest.
func icalPriority(p application.Priority) int {
	switch p {
	case application.PriorityHigh:
		return 1
	case application.PriorityLow:
		return 9
	default:
		return 5
	}
}

func setTimestamps(comp *goical.Component, created, updated time.Time) {
	if !created.IsZero() {
		comp.Props.SetDateTime(goical.PropCreated, created.UTC())
	}
	if !updated.IsZero() {
		comp.Props.SetDateTime(goical.PropLastModified, updated.UTC())
	}
}

// setRaw stores value verbatim, without TEXT escaping.
func setRaw(props goical.Props, name, value string) {
	prop := goical.NewProp(name)
	prop.Value = value
	props.Set(prop)
}
