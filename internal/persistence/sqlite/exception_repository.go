package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/item-scheduler/internal/persistence"
	"github.com/example/item-scheduler/internal/recurrence"
)

// ExceptionRepository implements persistence.ExceptionRepository using SQLite
type ExceptionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewExceptionRepository creates a new SQLite exception repository
func NewExceptionRepository(pool *ConnectionPool) *ExceptionRepository {
	return &ExceptionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// ListExceptions returns the exception index of each requested series. Series
// without exceptions are absent from the result.
func (r *ExceptionRepository) ListExceptions(ctx context.Context, seriesIDs []string) (map[string]recurrence.ExceptionIndex, error) {
	result := make(map[string]recurrence.ExceptionIndex)
	if len(seriesIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(seriesIDs)), ", ")
	query := `
		SELECT e.series_id, e.exception_date, o.id
		FROM item_exceptions e
		LEFT JOIN items o ON o.parent_id = e.series_id AND o.original_date = e.exception_date
		WHERE e.series_id IN (` + placeholders + `)
		ORDER BY e.series_id, e.exception_date
	`
	args := make([]any, len(seriesIDs))
	for i, id := range seriesIDs {
		args[i] = id
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var seriesID, dateStr string
		var overrideID sql.NullString
		if err := rows.Scan(&seriesID, &dateStr, &overrideID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		date, err := recurrence.ParseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse exception_date: %w", err)
		}

		index, ok := result[seriesID]
		if !ok {
			index = recurrence.ExceptionIndex{}
			result[seriesID] = index
		}
		if overrideID.Valid {
			index.Replace(date, overrideID.String)
		} else {
			index.Skip(date)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return result, nil
}

// SkipOccurrence suppresses date and removes any override replacing it
func (r *ExceptionRepository) SkipOccurrence(ctx context.Context, seriesID string, date recurrence.Date) (string, error) {
	if seriesID == "" || date.IsZero() {
		return "", persistence.ErrNotFound
	}

	var removed string
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		removed = ""
		if err := r.requireItemTx(ctx, tx, seriesID); err != nil {
			return err
		}

		overrideID, err := r.overrideForTx(ctx, tx, seriesID, date)
		if err != nil {
			return err
		}
		if overrideID != "" {
			if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM items WHERE id = ?", overrideID); err != nil {
				return r.mapper.MapError(err)
			}
			removed = overrideID
		}

		return r.insertExceptionTx(ctx, tx, seriesID, date)
	})
	if err != nil {
		return "", err
	}
	return removed, nil
}

// SaveOverride inserts the override for (ParentID, OriginalDate), or rewrites
// the existing one in place keeping its id, and records the exception.
func (r *ExceptionRepository) SaveOverride(ctx context.Context, override persistence.Item) (persistence.Item, error) {
	if override.ID == "" || override.ParentID == "" || override.OriginalDate.IsZero() {
		return persistence.Item{}, persistence.ErrConstraintViolation
	}
	override.Recurrence = recurrence.Once{}

	var saved persistence.Item
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		item := override
		if err := r.requireItemTx(ctx, tx, item.ParentID); err != nil {
			return err
		}

		existingID, err := r.overrideForTx(ctx, tx, item.ParentID, item.OriginalDate)
		if err != nil {
			return err
		}

		now := r.now().UTC()
		if existingID == "" {
			item.CreatedAt, item.UpdatedAt = now, now
			if err := insertItemTx(ctx, r.helper, r.mapper, tx, item); err != nil {
				return err
			}
		} else {
			current, err := getItemTx(ctx, r.helper, tx, existingID)
			if err != nil {
				return r.mapper.MapError(err)
			}
			item.ID = current.ID
			item.CreatedAt = current.CreatedAt
			item.UpdatedAt = now
			if err := updateItemTx(ctx, r.helper, r.mapper, tx, item); err != nil {
				return err
			}
		}

		if err := r.insertExceptionTx(ctx, tx, item.ParentID, item.OriginalDate); err != nil {
			return err
		}
		saved = item
		return nil
	})
	if err != nil {
		return persistence.Item{}, err
	}
	return saved, nil
}

// RestoreOccurrence deletes an override and the exception it created
func (r *ExceptionRepository) RestoreOccurrence(ctx context.Context, overrideID string) error {
	if overrideID == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var parentID, originalDate sql.NullString
		err := r.helper.QueryRowTx(ctx, tx, "SELECT parent_id, original_date FROM items WHERE id = ?", overrideID).
			Scan(&parentID, &originalDate)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if !parentID.Valid {
			return persistence.ErrConstraintViolation
		}

		if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM items WHERE id = ?", overrideID); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.ExecTx(ctx, tx,
			"DELETE FROM item_exceptions WHERE series_id = ? AND exception_date = ?",
			parentID.String, originalDate.String); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

func (r *ExceptionRepository) requireItemTx(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	err := r.helper.QueryRowTx(ctx, tx, "SELECT 1 FROM items WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

func (r *ExceptionRepository) overrideForTx(ctx context.Context, tx *sql.Tx, seriesID string, date recurrence.Date) (string, error) {
	var id string
	err := r.helper.QueryRowTx(ctx, tx,
		"SELECT id FROM items WHERE parent_id = ? AND original_date = ?", seriesID, date.String()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", r.mapper.MapError(err)
	}
	return id, nil
}

func (r *ExceptionRepository) insertExceptionTx(ctx context.Context, tx *sql.Tx, seriesID string, date recurrence.Date) error {
	_, err := r.helper.ExecTx(ctx, tx,
		"INSERT OR IGNORE INTO item_exceptions (series_id, exception_date, created_at) VALUES (?, ?, ?)",
		seriesID, date.String(), r.now().UTC().Format(time.RFC3339))
	return r.mapper.MapError(err)
}
