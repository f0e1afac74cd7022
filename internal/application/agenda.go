package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/item-scheduler/internal/alerts"
	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/recurrence"
)

// ProjectRange returns every occurrence between From and To inclusive:
// projected series dates, one-off items and overrides, ordered by date and
// time, with alert instants attached.
func (s *ItemService) ProjectRange(ctx context.Context, params ProjectRangeParams) (agenda Agenda, err error) {
	logger := s.loggerWith(ctx, "ProjectRange",
		"from", params.From.String(),
		"to", params.To.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to project range", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "range projected", "entries", len(agenda.Entries), "truncated", agenda.Truncated)
	}()

	if vErr := validateRange(params.From, params.To, s.maxRangeDays); vErr.HasErrors() {
		err = vErr
		return
	}
	agenda, err = s.projectRange(ctx, params.From, params.To, params.IncludeCompleted)
	return
}

// DueAlerts implements alerts.Source: it returns the alerts of incomplete
// occurrences whose instant lies in (after, until].
func (s *ItemService) DueAlerts(ctx context.Context, after, until time.Time) ([]alerts.Alert, error) {
	loc := s.Location()
	from := recurrence.DateOf(after.In(loc))
	to := recurrence.DateOf(until.In(loc)).AddDays(alertLookaheadDays)
	if earliest := to.AddDays(-max(s.maxRangeDays, alertLookaheadDays+1) + 1); from.Before(earliest) {
		from = earliest
	}

	agenda, err := s.projectRange(ctx, from, to, false)
	if err != nil {
		return nil, err
	}

	var due []alerts.Alert
	for _, entry := range agenda.Entries {
		if len(entry.Alerts) == 0 {
			continue
		}
		dueAt, err := s.resolver.Due(alerts.Target{Date: entry.Date, Time: entry.DueTime})
		if err != nil {
			return nil, err
		}
		for _, at := range entry.Alerts {
			if at.After(after) && !at.After(until) {
				due = append(due, alerts.Alert{
					ItemID:         entry.ItemID,
					SeriesID:       entry.SeriesID,
					Title:          entry.Title,
					OccurrenceDate: entry.Date,
					Due:            dueAt,
					At:             at,
				})
			}
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })
	return due, nil
}

// Calendar is the stored state behind a calendar export.
type Calendar struct {
	Series     []Series
	Overrides  []OverrideOccurrence
	Exceptions map[string]recurrence.ExceptionIndex
}

// Calendar returns the dated series and overrides relevant to [from, to].
// Zero bounds leave that side open.
func (s *ItemService) Calendar(ctx context.Context, from, to recurrence.Date) (Calendar, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Calendar{}, fieldError("to", "to must not be before from")
	}

	rows, err := s.items.ListItems(ctx, persistence.ItemFilter{From: from, To: to, Dated: true})
	if err != nil {
		return Calendar{}, mapItemRepoError(err)
	}

	var calendar Calendar
	var ids []string
	for _, row := range rows {
		if row.IsOverride() {
			calendar.Overrides = append(calendar.Overrides, overrideFromItem(row))
			continue
		}
		calendar.Series = append(calendar.Series, seriesFromItem(row))
		ids = append(ids, row.ID)
	}

	calendar.Exceptions, err = s.exceptions.ListExceptions(ctx, ids)
	if err != nil {
		return Calendar{}, mapItemRepoError(err)
	}
	return calendar, nil
}

func (s *ItemService) projectRange(ctx context.Context, from, to recurrence.Date, includeCompleted bool) (Agenda, error) {
	rows, err := s.items.ListItems(ctx, persistence.ItemFilter{From: from, To: to})
	if err != nil {
		return Agenda{}, mapItemRepoError(err)
	}

	var (
		recurring []persistence.Item
		entries   []AgendaEntry
		ids       []string
	)
	for _, row := range rows {
		if !row.IsOverride() {
			ids = append(ids, row.ID)
		}
	}
	exceptions, err := s.exceptions.ListExceptions(ctx, ids)
	if err != nil {
		return Agenda{}, mapItemRepoError(err)
	}

	for _, row := range rows {
		if row.IsCompleted && !includeCompleted {
			continue
		}
		switch {
		case row.IsOverride():
			entries = append(entries, entryFromItem(row, SourceOverride, row.ParentID, row.AnchorDate))
		case recurrence.IsRecurring(row.Recurrence):
			recurring = append(recurring, row)
		default:
			if exceptions[row.ID].Has(row.AnchorDate) {
				continue
			}
			entry := entryFromItem(row, SourceSingle, "", row.AnchorDate)
			entry.IsAnchor = true
			entries = append(entries, entry)
		}
	}

	agenda := Agenda{From: from, To: to}
	projections, err := s.projectSeries(ctx, recurring, from, to, exceptions)
	if err != nil {
		return Agenda{}, err
	}
	for i, series := range recurring {
		projection := projections[i]
		if projection.Truncated {
			agenda.Truncated = true
		}
		for _, date := range projection.Dates {
			entry := entryFromItem(series, SourceSeries, series.ID, date)
			entry.IsAnchor = date == series.AnchorDate
			entries = append(entries, entry)
		}
	}

	for i := range entries {
		entries[i].Alerts, err = s.resolver.Resolve(ctx,
			alerts.Target{Date: entries[i].Date, Time: entries[i].DueTime},
			entries[i].ReminderOffsets,
		)
		if err != nil {
			return Agenda{}, fmt.Errorf("resolve alerts for %s: %w", entries[i].ItemID, err)
		}
	}

	sortEntries(entries)
	agenda.Entries = entries
	return agenda, nil
}

// projectSeries expands each series on a bounded pool of workers. A series
// whose stored rule cannot be projected is logged and left empty.
func (s *ItemService) projectSeries(ctx context.Context, series []persistence.Item, from, to recurrence.Date, exceptions map[string]recurrence.ExceptionIndex) ([]recurrence.Projection, error) {
	results := make([]recurrence.Projection, len(series))
	if len(series) == 0 {
		return results, nil
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(s.workers, len(series)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := series[i]
				// Multi-day occurrences that start before the range still overlap it.
				start := from.AddDays(-spanDays(item.AnchorDate, item.AnchorEndDate))
				projection, err := s.engine.Project(item.Recurrence, item.AnchorDate, start, to, exceptions[item.ID])
				if err != nil {
					s.loggerWith(ctx, "ProjectRange", "item_id", item.ID).WarnContext(ctx, "series not projected", "error", err)
					continue
				}
				results[i] = projection
			}
		}()
	}

feed:
	for i := range series {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func entryFromItem(item persistence.Item, source EntrySource, seriesID string, date recurrence.Date) AgendaEntry {
	entry := AgendaEntry{
		Source:       source,
		ItemID:       item.ID,
		SeriesID:     seriesID,
		Date:         date,
		OriginalDate: item.OriginalDate,
		Details:      detailsFromItem(item),
		Completion:   completionFromItem(item),
	}
	if span := spanDays(item.AnchorDate, item.AnchorEndDate); span > 0 {
		entry.EndDate = date.AddDays(span)
	}
	return entry
}

// sortEntries orders by date, all-day before timed, due time, priority, then id.
func sortEntries(entries []AgendaEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if (a.DueTime == nil) != (b.DueTime == nil) {
			return a.DueTime == nil
		}
		if a.DueTime != nil && a.DueTime.Minutes() != b.DueTime.Minutes() {
			return a.DueTime.Minutes() < b.DueTime.Minutes()
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.ItemID < b.ItemID
	})
}
