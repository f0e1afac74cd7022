package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/mo"

	"github.com/example/item-scheduler/internal/alerts"
	"github.com/example/item-scheduler/internal/recurrence"
)

func normalizeItemInput(input ItemInput) ItemInput {
	input.Title = strings.TrimSpace(input.Title)
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if input.Kind == "" {
		input.Kind = KindEvent
	}
	if input.Recurrence == nil {
		input.Recurrence = recurrence.Once{}
	}
	input.AssigneeIDs = sortStrings(uniqueStrings(input.AssigneeIDs))
	return input
}

func normalizeOccurrenceInput(input OccurrenceInput) OccurrenceInput {
	input.Title = strings.TrimSpace(input.Title)
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if input.Kind == "" {
		input.Kind = KindEvent
	}
	if ids, ok := input.AssigneeIDs.Get(); ok {
		input.AssigneeIDs = mo.Some(sortStrings(uniqueStrings(ids)))
	}
	return input
}

func validateItemInput(input ItemInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Title == "" {
		vErr.add("title", "title is required")
	}
	validateClassification(input.Priority, input.Kind, vErr)

	if err := recurrence.Validate(input.Recurrence); err != nil {
		switch {
		case errors.Is(err, recurrence.ErrMissingInterval):
			vErr.add("recurrence.interval_days", "custom recurrence requires a positive interval")
		case errors.Is(err, recurrence.ErrEmptyWeekdays):
			vErr.add("recurrence.days", "select at least one weekday")
		default:
			vErr.add("recurrence", err.Error())
		}
	}
	if recurrence.IsRecurring(input.Recurrence) && input.AnchorDate.IsZero() {
		vErr.add("anchor_date", "recurring items need a start date")
	}

	if !input.AnchorEndDate.IsZero() {
		switch {
		case input.AnchorDate.IsZero():
			vErr.add("anchor_end_date", "end date requires a start date")
		case input.AnchorEndDate.Before(input.AnchorDate):
			vErr.add("anchor_end_date", "end date must not be before start date")
		}
	}

	multiDay := spanDays(input.AnchorDate, input.AnchorEndDate) > 0
	validateTimeWindow(input.DueTime, input.EndTime, multiDay, vErr)
	validateOffsets(input.AnchorDate, input.ReminderOffsets, vErr)
	return vErr
}

func validateOccurrenceInput(input OccurrenceInput, date, endDate recurrence.Date) *ValidationError {
	vErr := &ValidationError{}

	if input.Title == "" {
		vErr.add("title", "title is required")
	}
	validateClassification(input.Priority, input.Kind, vErr)
	if !endDate.IsZero() && endDate.Before(date) {
		vErr.add("new_end_date", "end date must not be before the new date")
	}

	multiDay := spanDays(date, endDate) > 0
	validateTimeWindow(input.DueTime, input.EndTime, multiDay, vErr)
	validateOffsets(date, input.ReminderOffsets, vErr)
	return vErr
}

func validateClassification(priority Priority, kind ItemKind, vErr *ValidationError) {
	switch priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		vErr.add("priority", fmt.Sprintf("unknown priority %q", priority))
	}
	switch kind {
	case KindEvent, KindReminder:
	default:
		vErr.add("kind", fmt.Sprintf("unknown kind %q", kind))
	}
}

func validateTimeWindow(due, end *recurrence.TimeOfDay, multiDay bool, vErr *ValidationError) {
	if end == nil {
		return
	}
	if due == nil {
		vErr.add("end_time", "end time requires a due time")
		return
	}
	if !multiDay && end.Minutes() < due.Minutes() {
		vErr.add("end_time", "end time must not be before due time")
	}
}

func validateOffsets(date recurrence.Date, offsets mo.Option[[]int], vErr *ValidationError) {
	if err := alerts.CheckOffsets(date, offsets); err != nil {
		switch {
		case errors.Is(err, alerts.ErrNoDueDate):
			vErr.add("reminder_offsets", "reminders need a due date")
		case errors.Is(err, alerts.ErrOffsetTooLarge):
			vErr.add("reminder_offsets", fmt.Sprintf("offsets must be at most %d minutes", alerts.MaxOffsetMinutes))
		default:
			vErr.add("reminder_offsets", "offsets must be zero or more minutes")
		}
		return
	}

	values, _ := offsets.Get()
	seen := make(map[int]struct{}, len(values))
	for _, minutes := range values {
		if _, dup := seen[minutes]; dup {
			vErr.add("reminder_offsets", "offsets must be distinct")
			return
		}
		seen[minutes] = struct{}{}
	}
}

func validateRange(from, to recurrence.Date, maxDays int) *ValidationError {
	vErr := &ValidationError{}
	if from.IsZero() {
		vErr.add("from", "from is required")
	}
	if to.IsZero() {
		vErr.add("to", "to is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	if to.Before(from) {
		vErr.add("to", "to must not be before from")
	} else if maxDays > 0 && to.DaysSince(from)+1 > maxDays {
		vErr.add("to", fmt.Sprintf("range must not exceed %d days", maxDays))
	}
	return vErr
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func sortStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
