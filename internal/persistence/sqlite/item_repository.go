package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/recurrence"
)

const itemColumns = `id, title, description, location, category, priority, item_kind,
	anchor_date, anchor_end_date, due_time, end_time,
	recurrence_kind, recurrence_interval, recurrence_weekdays, reminder_offsets,
	is_backlog, visible_to_dependents, assignee_ids, is_completed, completion_note, completed_at,
	parent_id, original_date, created_at, updated_at`

// ItemRepository implements persistence.ItemRepository using SQLite
type ItemRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewItemRepository creates a new SQLite item repository
func NewItemRepository(pool *ConnectionPool) *ItemRepository {
	return &ItemRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// CreateItem inserts a new item row
func (r *ItemRepository) CreateItem(ctx context.Context, item persistence.Item) error {
	if item.ID == "" {
		return persistence.ErrConstraintViolation
	}
	stampCreated(&item, r.now())

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertItemTx(ctx, r.helper, r.mapper, tx, item)
	})
}

// GetItem retrieves an item by ID
func (r *ItemRepository) GetItem(ctx context.Context, id string) (persistence.Item, error) {
	if id == "" {
		return persistence.Item{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if err != nil {
		return persistence.Item{}, r.mapper.MapError(err)
	}
	return item, nil
}

// UpdateItem reads the stored row and writes the mutator's result in one
// transaction. Identity, lineage and creation time cannot be changed. For a
// series, exceptions and overrides whose date the new rule and anchor no
// longer produce are deleted in the same transaction.
func (r *ItemRepository) UpdateItem(ctx context.Context, id string, mutate persistence.ItemMutator) (persistence.Item, error) {
	if id == "" {
		return persistence.Item{}, persistence.ErrNotFound
	}

	var updated persistence.Item
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		current, err := getItemTx(ctx, r.helper, tx, id)
		if err != nil {
			return r.mapper.MapError(err)
		}

		next, err := mutate(current)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.ParentID = current.ParentID
		next.OriginalDate = current.OriginalDate
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = r.now().UTC()

		if err := updateItemTx(ctx, r.helper, r.mapper, tx, next); err != nil {
			return err
		}
		if !next.IsOverride() {
			if err := pruneExceptionsTx(ctx, r.helper, r.mapper, tx, next); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return persistence.Item{}, err
	}
	return updated, nil
}

// DeleteItem deletes an item together with its exceptions and overrides
func (r *ItemRepository) DeleteItem(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM item_exceptions WHERE series_id = ?", id); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM items WHERE parent_id = ?", id); err != nil {
			return r.mapper.MapError(err)
		}

		result, err := r.helper.ExecTx(ctx, tx, "DELETE FROM items WHERE id = ?", id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ListItems lists items matching filter ordered by anchor date, due time and id
func (r *ItemRepository) ListItems(ctx context.Context, filter persistence.ItemFilter) ([]persistence.Item, error) {
	var (
		where []string
		args  []any
	)
	if filter.Dated || !filter.From.IsZero() || !filter.To.IsZero() {
		where = append(where, "anchor_date IS NOT NULL")
	}
	if !filter.To.IsZero() {
		where = append(where, "anchor_date <= ?")
		args = append(args, filter.To.String())
	}
	if !filter.From.IsZero() {
		// Recurring series may still produce dates after an early anchor.
		where = append(where, "(recurrence_kind != 'once' OR COALESCE(anchor_end_date, anchor_date) >= ?)")
		args = append(args, filter.From.String())
	}
	if filter.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, filter.ParentID)
	}

	query := "SELECT " + itemColumns + " FROM items"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY anchor_date IS NULL, anchor_date ASC, due_time IS NOT NULL, due_time ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var items []persistence.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return items, nil
}

// SetCompleted flips the completion flag of a single row
func (r *ItemRepository) SetCompleted(ctx context.Context, id string, completed bool, note string, at time.Time) (persistence.Item, error) {
	if id == "" {
		return persistence.Item{}, persistence.ErrNotFound
	}

	var completedAt sql.NullString
	if completed {
		completedAt = sql.NullString{String: at.UTC().Format(time.RFC3339), Valid: true}
	} else {
		note = ""
	}

	var item persistence.Item
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(ctx, tx,
			`UPDATE items SET is_completed = ?, completion_note = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
			completed, note, completedAt, at.UTC().Format(time.RFC3339), id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}

		item, err = getItemTx(ctx, r.helper, tx, id)
		return r.mapper.MapError(err)
	})
	if err != nil {
		return persistence.Item{}, err
	}
	return item, nil
}

// pruneExceptionsTx deletes the exceptions of series, and the overrides
// replacing them, that fall on dates its rule does not produce. A series that
// no longer repeats keeps none.
func pruneExceptionsTx(ctx context.Context, helper *QueryHelper, mapper *ErrorMapper, tx *sql.Tx, series persistence.Item) error {
	values, err := exceptionDatesTx(ctx, helper, mapper, tx, series.ID)
	if err != nil {
		return err
	}

	for _, value := range values {
		if recurrence.IsRecurring(series.Recurrence) {
			date, err := recurrence.ParseDate(value)
			if err != nil {
				return fmt.Errorf("failed to parse exception_date: %w", err)
			}
			occurs, err := recurrence.Occurs(series.Recurrence, series.AnchorDate, date)
			if err != nil {
				return err
			}
			if occurs {
				continue
			}
		}

		if _, err := helper.ExecTx(ctx, tx,
			"DELETE FROM items WHERE parent_id = ? AND original_date = ?", series.ID, value); err != nil {
			return mapper.MapError(err)
		}
		if _, err := helper.ExecTx(ctx, tx,
			"DELETE FROM item_exceptions WHERE series_id = ? AND exception_date = ?", series.ID, value); err != nil {
			return mapper.MapError(err)
		}
	}
	return nil
}

func exceptionDatesTx(ctx context.Context, helper *QueryHelper, mapper *ErrorMapper, tx *sql.Tx, seriesID string) ([]string, error) {
	rows, err := helper.QueryTx(ctx, tx, "SELECT exception_date FROM item_exceptions WHERE series_id = ?", seriesID)
	if err != nil {
		return nil, mapper.MapError(err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, mapper.MapError(err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return values, nil
}

func stampCreated(item *persistence.Item, now time.Time) {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now.UTC()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
}

func getItemTx(ctx context.Context, helper *QueryHelper, tx *sql.Tx, id string) (persistence.Item, error) {
	return scanItem(helper.QueryRowTx(ctx, tx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id))
}

func insertItemTx(ctx context.Context, helper *QueryHelper, mapper *ErrorMapper, tx *sql.Tx, item persistence.Item) error {
	values, err := itemValues(item)
	if err != nil {
		return err
	}
	args := append([]any{item.ID}, values...)
	args = append(args,
		nullString(item.ParentID),
		nullDate(item.OriginalDate),
		item.CreatedAt.UTC().Format(time.RFC3339),
		updatedAtOf(item),
	)

	query := "INSERT INTO items (" + itemColumns + ") VALUES (?" + strings.Repeat(", ?", 24) + ")"
	if _, err := helper.ExecTx(ctx, tx, query, args...); err != nil {
		return mapper.MapError(err)
	}
	return nil
}

func updateItemTx(ctx context.Context, helper *QueryHelper, mapper *ErrorMapper, tx *sql.Tx, item persistence.Item) error {
	values, err := itemValues(item)
	if err != nil {
		return err
	}
	query := `
		UPDATE items SET title = ?, description = ?, location = ?, category = ?, priority = ?, item_kind = ?,
			anchor_date = ?, anchor_end_date = ?, due_time = ?, end_time = ?,
			recurrence_kind = ?, recurrence_interval = ?, recurrence_weekdays = ?, reminder_offsets = ?,
			is_backlog = ?, visible_to_dependents = ?, assignee_ids = ?, is_completed = ?, completion_note = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := helper.ExecTx(ctx, tx, query, append(values, updatedAtOf(item), item.ID)...)
	if err != nil {
		return mapper.MapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// itemValues returns the mutable columns from title through completed_at.
func itemValues(item persistence.Item) ([]any, error) {
	kind, interval, weekdays := recurrence.Encode(item.Recurrence)

	var offsets sql.NullString
	if values, ok := item.ReminderOffsets.Get(); ok {
		if values == nil {
			values = []int{}
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("failed to encode reminder_offsets: %w", err)
		}
		offsets = sql.NullString{String: string(raw), Valid: true}
	}

	assignees := item.AssigneeIDs
	if assignees == nil {
		assignees = []string{}
	}
	rawAssignees, err := json.Marshal(assignees)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assignee_ids: %w", err)
	}

	var completedAt sql.NullString
	if item.CompletedAt != nil {
		completedAt = sql.NullString{String: item.CompletedAt.UTC().Format(time.RFC3339), Valid: true}
	}
	return []any{
		item.Title,
		item.Description,
		item.Location,
		item.Category,
		orDefault(item.Priority, "medium"),
		orDefault(item.Kind, "event"),
		nullDate(item.AnchorDate),
		nullDate(item.AnchorEndDate),
		nullTimeOfDay(item.DueTime),
		nullTimeOfDay(item.EndTime),
		kind,
		interval,
		weekdays,
		offsets,
		item.IsBacklog,
		item.VisibleToDependents,
		string(rawAssignees),
		item.IsCompleted,
		item.CompletionNote,
		completedAt,
	}, nil
}

func updatedAtOf(item persistence.Item) string {
	if item.UpdatedAt.IsZero() {
		return item.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item.UpdatedAt.UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (persistence.Item, error) {
	var (
		item                                            persistence.Item
		anchor, anchorEnd, dueTime, endTime             sql.NullString
		offsets, completedAt, parentID, originalDate    sql.NullString
		recurrenceKind, assignees, createdAt, updatedAt string
		interval                                        int
		weekdays                                        int64
	)

	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Location,
		&item.Category,
		&item.Priority,
		&item.Kind,
		&anchor,
		&anchorEnd,
		&dueTime,
		&endTime,
		&recurrenceKind,
		&interval,
		&weekdays,
		&offsets,
		&item.IsBacklog,
		&item.VisibleToDependents,
		&assignees,
		&item.IsCompleted,
		&item.CompletionNote,
		&completedAt,
		&parentID,
		&originalDate,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Item{}, persistence.ErrNotFound
		}
		return persistence.Item{}, err
	}

	if item.AnchorDate, err = parseNullDate(anchor); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse anchor_date: %w", err)
	}
	if item.AnchorEndDate, err = parseNullDate(anchorEnd); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse anchor_end_date: %w", err)
	}
	if item.OriginalDate, err = parseNullDate(originalDate); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse original_date: %w", err)
	}
	if item.DueTime, err = parseNullTimeOfDay(dueTime); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse due_time: %w", err)
	}
	if item.EndTime, err = parseNullTimeOfDay(endTime); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse end_time: %w", err)
	}
	if item.Recurrence, err = recurrence.Decode(recurrenceKind, interval, weekdays); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to decode recurrence: %w", err)
	}

	item.ReminderOffsets = mo.None[[]int]()
	if offsets.Valid {
		var values []int
		if err := json.Unmarshal([]byte(offsets.String), &values); err != nil {
			return persistence.Item{}, fmt.Errorf("failed to decode reminder_offsets: %w", err)
		}
		if values == nil {
			values = []int{}
		}
		item.ReminderOffsets = mo.Some(values)
	}
	if err := json.Unmarshal([]byte(assignees), &item.AssigneeIDs); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to decode assignee_ids: %w", err)
	}
	if len(item.AssigneeIDs) == 0 {
		item.AssigneeIDs = nil
	}

	if completedAt.Valid {
		at, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return persistence.Item{}, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		item.CompletedAt = &at
	}
	item.ParentID = parentID.String

	if item.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return persistence.Item{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return item, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullDate(d recurrence.Date) sql.NullString {
	return sql.NullString{String: d.String(), Valid: !d.IsZero()}
}

func parseNullDate(value sql.NullString) (recurrence.Date, error) {
	if !value.Valid || value.String == "" {
		return recurrence.Date{}, nil
	}
	return recurrence.ParseDate(value.String)
}

func nullTimeOfDay(t *recurrence.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func parseNullTimeOfDay(value sql.NullString) (*recurrence.TimeOfDay, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := recurrence.ParseTimeOfDay(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
