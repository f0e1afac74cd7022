package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names a recurrence rule variant.
type Kind string

const (
	KindOnce         Kind = "once"
	KindDaily        Kind = "daily"
	KindWeekly       Kind = "weekly"
	KindBiweekly     Kind = "biweekly"
	KindCustomWeekly Kind = "custom_weekly"
	KindMonthly      Kind = "monthly"
	KindQuarterly    Kind = "quarterly"
	KindAnnually     Kind = "annually"
	KindCustom       Kind = "custom"
)

var (
	// ErrUnknownKind indicates a recurrence kind outside the supported set.
	ErrUnknownKind = errors.New("recurrence: unknown rule kind")
	// ErrEmptyWeekdays indicates a custom_weekly rule with no selected days.
	ErrEmptyWeekdays = errors.New("recurrence: custom_weekly requires at least one weekday")
	// ErrMissingInterval indicates a custom rule submitted without a positive interval.
	ErrMissingInterval = errors.New("recurrence: custom rule requires a positive interval")
	// ErrMissingAnchor indicates a recurring rule was projected without an anchor date.
	ErrMissingAnchor = errors.New("recurrence: recurring rule requires an anchor date")
	// ErrInvalidRange indicates a projection range whose end precedes its start.
	ErrInvalidRange = errors.New("recurrence: range end precedes range start")
)

// Rule is the closed set of recurrence variants. Only types in this package
// implement it.
type Rule interface {
	Kind() Kind
	isRule()
}

// Once never repeats.
type Once struct{}

// Daily repeats every day from the anchor.
type Daily struct{}

// Weekly repeats every 7 days from the anchor.
type Weekly struct{}

// Biweekly repeats every 14 days from the anchor.
type Biweekly struct{}

// CustomWeekly repeats on each listed weekday, starting at the anchor.
type CustomWeekly struct {
	Days []time.Weekday
}

// Monthly repeats on the anchor's day-of-month every month.
type Monthly struct{}

// Quarterly repeats on the anchor's day-of-month every three months.
type Quarterly struct{}

// Annually repeats on the anchor's month and day every year.
type Annually struct{}

// Custom repeats every IntervalDays days from the anchor. A non-positive
// interval does not repeat.
type Custom struct {
	IntervalDays int
}

func (Once) Kind() Kind         { return KindOnce }
func (Daily) Kind() Kind        { return KindDaily }
func (Weekly) Kind() Kind       { return KindWeekly }
func (Biweekly) Kind() Kind     { return KindBiweekly }
func (CustomWeekly) Kind() Kind { return KindCustomWeekly }
func (Monthly) Kind() Kind      { return KindMonthly }
func (Quarterly) Kind() Kind    { return KindQuarterly }
func (Annually) Kind() Kind     { return KindAnnually }
func (Custom) Kind() Kind       { return KindCustom }

func (Once) isRule()         {}
func (Daily) isRule()        {}
func (Weekly) isRule()       {}
func (Biweekly) isRule()     {}
func (CustomWeekly) isRule() {}
func (Monthly) isRule()      {}
func (Quarterly) isRule()    {}
func (Annually) isRule()     {}
func (Custom) isRule()       {}

// Normalize maps a nil rule and a custom rule without a positive interval
// to Once. Every other rule is returned unchanged.
func Normalize(rule Rule) Rule {
	switch r := rule.(type) {
	case nil:
		return Once{}
	case Custom:
		if r.IntervalDays <= 0 {
			return Once{}
		}
	}
	return rule
}

// IsRecurring reports whether rule produces more than its anchor date.
// It is the only recurring-detection predicate in the codebase.
func IsRecurring(rule Rule) bool {
	return Normalize(rule).Kind() != KindOnce
}

// Validate checks a rule submitted by a caller. Unlike Normalize, it rejects
// a custom rule without an interval so the user gets an actionable message.
func Validate(rule Rule) error {
	switch r := rule.(type) {
	case nil:
		return nil
	case Custom:
		if r.IntervalDays <= 0 {
			return ErrMissingInterval
		}
	case CustomWeekly:
		if len(weekdaySet(r.Days)) == 0 {
			return ErrEmptyWeekdays
		}
	}
	return nil
}

// Parse builds a rule from its kind and the parameters that kind uses.
// Parameters the kind does not use are ignored.
func Parse(kind Kind, intervalDays int, days []time.Weekday) (Rule, error) {
	switch kind {
	case "", KindOnce:
		return Once{}, nil
	case KindDaily:
		return Daily{}, nil
	case KindWeekly:
		return Weekly{}, nil
	case KindBiweekly:
		return Biweekly{}, nil
	case KindCustomWeekly:
		return CustomWeekly{Days: sortedWeekdays(days)}, nil
	case KindMonthly:
		return Monthly{}, nil
	case KindQuarterly:
		return Quarterly{}, nil
	case KindAnnually:
		return Annually{}, nil
	case KindCustom:
		return Custom{IntervalDays: intervalDays}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Params returns the interval and weekday parameters carried by rule.
func Params(rule Rule) (intervalDays int, days []time.Weekday) {
	switch r := rule.(type) {
	case Custom:
		return r.IntervalDays, nil
	case CustomWeekly:
		return 0, sortedWeekdays(r.Days)
	}
	return 0, nil
}

// Encode flattens rule into the columns used for storage.
func Encode(rule Rule) (kind string, intervalDays int, weekdayMask int64) {
	if rule == nil {
		rule = Once{}
	}
	interval, days := Params(rule)
	return string(rule.Kind()), interval, EncodeWeekdays(days)
}

// Decode reverses Encode.
func Decode(kind string, intervalDays int, weekdayMask int64) (Rule, error) {
	return Parse(Kind(kind), intervalDays, DecodeWeekdays(weekdayMask))
}

// EncodeWeekdays encodes weekdays as a bitmask for storage.
func EncodeWeekdays(weekdays []time.Weekday) int64 {
	var mask int64
	for _, day := range weekdays {
		if day >= time.Sunday && day <= time.Saturday {
			mask |= 1 << uint(day)
		}
	}
	return mask
}

// DecodeWeekdays decodes weekdays from a bitmask.
func DecodeWeekdays(mask int64) []time.Weekday {
	var weekdays []time.Weekday
	for day := time.Sunday; day <= time.Saturday; day++ {
		if mask&(1<<uint(day)) != 0 {
			weekdays = append(weekdays, day)
		}
	}
	return weekdays
}

// ParseWeekday accepts a full English weekday name or its first three letters.
func ParseWeekday(value string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := day.String()
		if strings.EqualFold(value, name) || strings.EqualFold(value, name[:3]) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("recurrence: unknown weekday %q", value)
}

func sortedWeekdays(days []time.Weekday) []time.Weekday {
	return DecodeWeekdays(EncodeWeekdays(days))
}

func weekdaySet(days []time.Weekday) map[time.Weekday]struct{} {
	set := make(map[time.Weekday]struct{}, len(days))
	for _, day := range days {
		if day >= time.Sunday && day <= time.Saturday {
			set[day] = struct{}{}
		}
	}
	return set
}
