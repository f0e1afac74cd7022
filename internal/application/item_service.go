package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/item-scheduler/internal/alerts"
	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/recurrence"
)

const (
	// DefaultMaxRangeDays bounds a single agenda query.
	DefaultMaxRangeDays = 366
	// DefaultWorkers is the number of series projected concurrently.
	DefaultWorkers = 4
	// alertLookaheadDays widens alert scans so the longest allowed offset
	// reaching back from a later occurrence is found.
	alertLookaheadDays = alerts.MaxOffsetDays + 1
)

// ItemService coordinates validation, projection and persistence for items,
// their exceptions and their overrides.
type ItemService struct {
	items        persistence.ItemRepository
	exceptions   persistence.ExceptionRepository
	engine       *recurrence.Engine
	resolver     *alerts.Resolver
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
	maxRangeDays int
	workers      int
}

// ItemServiceOption configures an ItemService.
type ItemServiceOption func(*ItemService)

// WithIDGenerator overrides uuid-based item ids.
func WithIDGenerator(next func() string) ItemServiceOption {
	return func(s *ItemService) {
		if next != nil {
			s.idGenerator = next
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ItemServiceOption {
	return func(s *ItemService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ItemServiceOption {
	return func(s *ItemService) {
		s.logger = defaultLogger(logger)
	}
}

// WithMaxRangeDays bounds ProjectRange queries.
func WithMaxRangeDays(days int) ItemServiceOption {
	return func(s *ItemService) {
		if days > 0 {
			s.maxRangeDays = days
		}
	}
}

// WithWorkers sets how many series are projected concurrently.
func WithWorkers(workers int) ItemServiceOption {
	return func(s *ItemService) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// NewItemService wires dependencies for item operations. A nil resolver
// resolves alerts in the engine location without default offsets.
func NewItemService(items persistence.ItemRepository, exceptions persistence.ExceptionRepository, engine *recurrence.Engine, resolver *alerts.Resolver, opts ...ItemServiceOption) (*ItemService, error) {
	if items == nil || exceptions == nil {
		return nil, errors.New("application: item and exception repositories are required")
	}
	if engine == nil {
		var err error
		engine, err = recurrence.NewEngine(recurrence.EngineConfig{})
		if err != nil {
			return nil, err
		}
	}
	if resolver == nil {
		resolver = alerts.NewResolver(engine.Location(), nil)
	}

	s := &ItemService{
		items:        items,
		exceptions:   exceptions,
		engine:       engine,
		resolver:     resolver,
		idGenerator:  uuid.NewString,
		now:          time.Now,
		logger:       slog.Default(),
		maxRangeDays: DefaultMaxRangeDays,
		workers:      DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ItemService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ItemService", operation, attrs...)
}

// Location returns the zone calendar dates are interpreted in.
func (s *ItemService) Location() *time.Location {
	return s.engine.Location()
}

// Today returns the current calendar date.
func (s *ItemService) Today() recurrence.Date {
	return s.engine.Today(s.now())
}

// CreateItem validates input and persists a new series or one-off item.
func (s *ItemService) CreateItem(ctx context.Context, params CreateItemParams) (series Series, err error) {
	logger := s.loggerWith(ctx, "CreateItem")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("item_id", series.ID).InfoContext(ctx, "item created", "recurrence", series.Recurrence.Kind())
	}()

	input := normalizeItemInput(params.Input)
	if vErr := validateItemInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now().UTC()
	item := applyItemInput(persistence.Item{
		ID:        s.idGenerator(),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, input)

	if err = s.items.CreateItem(ctx, item); err != nil {
		err = mapItemRepoError(err)
		return
	}
	series = seriesFromItem(item)
	return
}

// GetItem returns the stored series or override with the given id.
func (s *ItemService) GetItem(ctx context.Context, id string) (ItemRecord, error) {
	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return ItemRecord{}, mapItemRepoError(err)
	}
	return recordFromItem(item), nil
}

// UpdateItem rewrites every field of a stored item. When the edit was made
// from a later occurrence of a series the stored anchor is kept, and the
// submitted span length is re-applied from it.
func (s *ItemService) UpdateItem(ctx context.Context, params UpdateItemParams) (record ItemRecord, err error) {
	logger := s.loggerWith(ctx, "UpdateItem", "item_id", params.ItemID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "item updated")
	}()

	input := normalizeItemInput(params.Input)
	if vErr := validateItemInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	stored, err := s.items.UpdateItem(ctx, params.ItemID, func(current persistence.Item) (persistence.Item, error) {
		if current.IsOverride() {
			if recurrence.IsRecurring(input.Recurrence) {
				return persistence.Item{}, fieldError("recurrence", "an edited occurrence cannot repeat")
			}
			if input.AnchorDate.IsZero() {
				return persistence.Item{}, fieldError("anchor_date", "an edited occurrence needs a date")
			}
			return applyItemInput(current, input), nil
		}

		next := applyItemInput(current, input)
		viewed := params.ViewedDate
		if !viewed.IsZero() && !current.AnchorDate.IsZero() && viewed != current.AnchorDate {
			next.AnchorDate = current.AnchorDate
			next.AnchorEndDate = recurrence.Date{}
			if span := spanDays(input.AnchorDate, input.AnchorEndDate); span > 0 {
				next.AnchorEndDate = current.AnchorDate.AddDays(span)
			}
			logger.DebugContext(ctx, "anchor preserved",
				"anchor_date", current.AnchorDate.String(),
				"viewed_date", viewed.String(),
			)
		}
		return next, nil
	})
	if err != nil {
		err = mapItemRepoError(err)
		return
	}
	record = recordFromItem(stored)
	return
}

// DeleteItem deletes a series together with its exceptions and overrides.
// Deleting an override instead restores the occurrence it replaced.
func (s *ItemService) DeleteItem(ctx context.Context, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteItem", "item_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete item", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "item deleted")
	}()

	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		err = mapItemRepoError(err)
		return
	}

	if item.IsOverride() {
		err = mapItemRepoError(s.exceptions.RestoreOccurrence(ctx, id))
		return
	}
	err = mapItemRepoError(s.items.DeleteItem(ctx, id))
	return
}

// DeleteOccurrence suppresses one date of a recurring series. An override
// replacing that date is removed as well.
func (s *ItemService) DeleteOccurrence(ctx context.Context, params DeleteOccurrenceParams) (err error) {
	logger := s.loggerWith(ctx, "DeleteOccurrence",
		"series_id", params.SeriesID,
		"occurrence_date", params.Date.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete occurrence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "occurrence deleted")
	}()

	series, err := s.recurringSeries(ctx, params.SeriesID)
	if err != nil {
		return
	}
	if err = checkOccurrence(series, params.Date, "date"); err != nil {
		return
	}

	removed, err := s.exceptions.SkipOccurrence(ctx, series.ID, params.Date)
	if err != nil {
		err = mapItemRepoError(err)
		return
	}
	if removed != "" {
		logger.InfoContext(ctx, "override removed", "override_id", removed)
	}
	return
}

// EditOccurrence detaches one date of a recurring series into an override
// item, replacing any override already standing in for that date.
func (s *ItemService) EditOccurrence(ctx context.Context, params EditOccurrenceParams) (override OverrideOccurrence, err error) {
	logger := s.loggerWith(ctx, "EditOccurrence",
		"series_id", params.SeriesID,
		"original_date", params.OriginalDate.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to edit occurrence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("override_id", override.ID).InfoContext(ctx, "occurrence edited", "new_date", override.Date.String())
	}()

	series, err := s.recurringSeries(ctx, params.SeriesID)
	if err != nil {
		return
	}
	if err = checkOccurrence(series, params.OriginalDate, "original_date"); err != nil {
		return
	}

	newDate := params.NewDate
	if newDate.IsZero() {
		newDate = params.OriginalDate
	}
	newEndDate := params.NewEndDate
	if newEndDate.IsZero() {
		if span := spanDays(series.AnchorDate, series.AnchorEndDate); span > 0 {
			newEndDate = newDate.AddDays(span)
		}
	}

	fields := normalizeOccurrenceInput(params.Fields)
	if vErr := validateOccurrenceInput(fields, newDate, newEndDate); vErr.HasErrors() {
		err = vErr
		return
	}

	previous, err := s.currentOverride(ctx, series.ID, params.OriginalDate)
	if err != nil {
		return
	}

	item := persistence.Item{
		ID:                  s.idGenerator(),
		Title:               fields.Title,
		Description:         fields.Description,
		Location:            fields.Location,
		Category:            fields.Category,
		Priority:            string(fields.Priority),
		Kind:                string(fields.Kind),
		AnchorDate:          newDate,
		AnchorEndDate:       newEndDate,
		DueTime:             fields.DueTime,
		EndTime:             fields.EndTime,
		Recurrence:          recurrence.Once{},
		ReminderOffsets:     fields.ReminderOffsets,
		VisibleToDependents: series.VisibleToDependents,
		ParentID:            series.ID,
		OriginalDate:        params.OriginalDate,
	}
	if previous != nil {
		item.AssigneeIDs = previous.AssigneeIDs
		item.IsCompleted = previous.IsCompleted
		item.CompletionNote = previous.CompletionNote
		item.CompletedAt = previous.CompletedAt
	}
	if ids, ok := fields.AssigneeIDs.Get(); ok {
		item.AssigneeIDs = ids
	}

	saved, err := s.exceptions.SaveOverride(ctx, item)
	if err != nil {
		err = mapItemRepoError(err)
		return
	}
	override = overrideFromItem(saved)
	return
}

// CompleteItem marks the addressed series or override row completed.
func (s *ItemService) CompleteItem(ctx context.Context, id, note string) (ItemRecord, error) {
	return s.setCompleted(ctx, "CompleteItem", id, true, strings.TrimSpace(note))
}

// UncompleteItem clears the completion state of the addressed row.
func (s *ItemService) UncompleteItem(ctx context.Context, id string) (ItemRecord, error) {
	return s.setCompleted(ctx, "UncompleteItem", id, false, "")
}

func (s *ItemService) setCompleted(ctx context.Context, operation, id string, completed bool, note string) (record ItemRecord, err error) {
	logger := s.loggerWith(ctx, operation, "item_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change completion", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "completion changed", "completed", completed)
	}()

	item, err := s.items.SetCompleted(ctx, id, completed, note, s.now())
	if err != nil {
		err = mapItemRepoError(err)
		return
	}
	record = recordFromItem(item)
	return
}

func (s *ItemService) recurringSeries(ctx context.Context, id string) (persistence.Item, error) {
	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return persistence.Item{}, mapItemRepoError(err)
	}
	if item.IsOverride() || !recurrence.IsRecurring(item.Recurrence) {
		return persistence.Item{}, ErrInvalidScope
	}
	return item, nil
}

func (s *ItemService) currentOverride(ctx context.Context, seriesID string, date recurrence.Date) (*persistence.Item, error) {
	index, err := s.exceptions.ListExceptions(ctx, []string{seriesID})
	if err != nil {
		return nil, mapItemRepoError(err)
	}
	overrideID, ok := index[seriesID].Override(date)
	if !ok {
		return nil, nil
	}
	item, err := s.items.GetItem(ctx, overrideID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapItemRepoError(err)
	}
	return &item, nil
}

func checkOccurrence(series persistence.Item, date recurrence.Date, field string) error {
	if date.IsZero() {
		return fieldError(field, "occurrence date is required")
	}
	occurs, err := recurrence.Occurs(series.Recurrence, series.AnchorDate, date)
	if err != nil {
		return fieldError("recurrence", err.Error())
	}
	if !occurs {
		return fieldError(field, fmt.Sprintf("%s is not an occurrence of this series", date))
	}
	return nil
}

func applyItemInput(item persistence.Item, input ItemInput) persistence.Item {
	item.Title = input.Title
	item.Description = input.Description
	item.Location = input.Location
	item.Category = input.Category
	item.Priority = string(input.Priority)
	item.Kind = string(input.Kind)
	item.AnchorDate = input.AnchorDate
	item.AnchorEndDate = input.AnchorEndDate
	item.DueTime = input.DueTime
	item.EndTime = input.EndTime
	item.Recurrence = input.Recurrence
	item.ReminderOffsets = input.ReminderOffsets
	item.IsBacklog = input.IsBacklog
	item.VisibleToDependents = input.VisibleToDependents
	item.AssigneeIDs = input.AssigneeIDs
	if item.IsOverride() {
		item.Recurrence = recurrence.Once{}
		item.IsBacklog = false
	}
	return item
}

func detailsFromItem(item persistence.Item) Details {
	return Details{
		Title:           item.Title,
		Description:     item.Description,
		Location:        item.Location,
		Category:        item.Category,
		Priority:        Priority(item.Priority),
		Kind:            ItemKind(item.Kind),
		DueTime:         item.DueTime,
		EndTime:         item.EndTime,
		ReminderOffsets: item.ReminderOffsets,
		AssigneeIDs:     item.AssigneeIDs,
	}
}

func completionFromItem(item persistence.Item) Completion {
	return Completion{
		IsCompleted: item.IsCompleted,
		Note:        item.CompletionNote,
		CompletedAt: item.CompletedAt,
	}
}

func seriesFromItem(item persistence.Item) Series {
	return Series{
		ID:                  item.ID,
		Details:             detailsFromItem(item),
		AnchorDate:          item.AnchorDate,
		AnchorEndDate:       item.AnchorEndDate,
		Recurrence:          recurrence.Normalize(item.Recurrence),
		IsBacklog:           item.IsBacklog,
		VisibleToDependents: item.VisibleToDependents,
		Completion:          completionFromItem(item),
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
	}
}

func overrideFromItem(item persistence.Item) OverrideOccurrence {
	return OverrideOccurrence{
		ID:                  item.ID,
		SeriesID:            item.ParentID,
		OriginalDate:        item.OriginalDate,
		Date:                item.AnchorDate,
		EndDate:             item.AnchorEndDate,
		Details:             detailsFromItem(item),
		VisibleToDependents: item.VisibleToDependents,
		Completion:          completionFromItem(item),
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
	}
}

func recordFromItem(item persistence.Item) ItemRecord {
	if item.IsOverride() {
		override := overrideFromItem(item)
		return ItemRecord{Override: &override}
	}
	series := seriesFromItem(item)
	return ItemRecord{Series: &series}
}
