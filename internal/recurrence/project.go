package recurrence

import (
	"sort"

	"github.com/samber/mo"
)

// ExceptionIndex maps each suppressed date of one series to the id of the
// override item that replaces it, if any.
type ExceptionIndex map[Date]mo.Option[string]

// Has reports whether date is suppressed.
func (x ExceptionIndex) Has(date Date) bool {
	_, ok := x[date]
	return ok
}

// Override returns the override id registered for date.
func (x ExceptionIndex) Override(date Date) (string, bool) {
	return x[date].Get()
}

// Skip marks date as suppressed without a replacement.
func (x ExceptionIndex) Skip(date Date) {
	x[date] = mo.None[string]()
}

// Replace marks date as suppressed and replaced by overrideID.
func (x ExceptionIndex) Replace(date Date, overrideID string) {
	x[date] = mo.Some(overrideID)
}

// Dates returns the suppressed dates in ascending order.
func (x ExceptionIndex) Dates() []Date {
	dates := make([]Date, 0, len(x))
	for date := range x {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Clone returns an independent copy of x.
func (x ExceptionIndex) Clone() ExceptionIndex {
	out := make(ExceptionIndex, len(x))
	for date, id := range x {
		out[date] = id
	}
	return out
}

// Project expands rule into the ascending dates it produces within
// [start, end], never earlier than anchor and never on a date present in
// exceptions. It holds no state and may be called concurrently.
//
// A non-recurring rule produces the anchor when it falls in range. An empty
// custom_weekly day set is reported as ErrEmptyWeekdays.
func Project(rule Rule, anchor, start, end Date, exceptions ExceptionIndex) ([]Date, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	rule = Normalize(rule)
	if anchor.IsZero() {
		if rule.Kind() == KindOnce {
			return nil, nil
		}
		return nil, ErrMissingAnchor
	}

	lower := MaxDate(start, anchor)
	if lower.After(end) {
		return nil, nil
	}

	var dates []Date
	emit := func(d Date) {
		if !exceptions.Has(d) {
			dates = append(dates, d)
		}
	}

	switch r := rule.(type) {
	case Once:
		if !anchor.Before(start) {
			emit(anchor)
		}
	case Daily:
		stepDays(anchor, lower, end, 1, emit)
	case Weekly:
		stepDays(anchor, lower, end, 7, emit)
	case Biweekly:
		stepDays(anchor, lower, end, 14, emit)
	case Custom:
		stepDays(anchor, lower, end, r.IntervalDays, emit)
	case CustomWeekly:
		set := weekdaySet(r.Days)
		if len(set) == 0 {
			return nil, ErrEmptyWeekdays
		}
		for d := lower; !d.After(end); d = d.AddDays(1) {
			if _, ok := set[d.Weekday()]; ok {
				emit(d)
			}
		}
	case Monthly:
		stepMonths(anchor, lower, end, 1, emit)
	case Quarterly:
		stepMonths(anchor, lower, end, 3, emit)
	case Annually:
		stepMonths(anchor, lower, end, 12, emit)
	default:
		return nil, ErrUnknownKind
	}
	return dates, nil
}

// Occurs reports whether rule anchored at anchor produces date, ignoring
// exceptions.
func Occurs(rule Rule, anchor, date Date) (bool, error) {
	dates, err := Project(rule, anchor, date, date, nil)
	if err != nil {
		return false, err
	}
	return len(dates) == 1, nil
}

func stepDays(anchor, lower, end Date, step int, emit func(Date)) {
	offset := lower.DaysSince(anchor)
	k := (offset + step - 1) / step
	for d := anchor.AddDays(k * step); !d.After(end); d = d.AddDays(step) {
		if !d.Before(lower) {
			emit(d)
		}
	}
}

// stepMonths computes every candidate directly from the anchor so a clamped
// month does not shorten the day-of-month of later steps.
func stepMonths(anchor, lower, end Date, step int, emit func(Date)) {
	elapsed := (lower.Year-anchor.Year)*12 + int(lower.Month) - int(anchor.Month)
	k := elapsed/step - 1
	if k < 0 {
		k = 0
	}
	for ; ; k++ {
		d := anchor.AddMonthsClamped(k * step)
		if d.After(end) {
			return
		}
		if !d.Before(lower) {
			emit(d)
		}
	}
}
