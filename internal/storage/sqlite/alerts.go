package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/steveyegge/stepview/internal/types"
)

const alertColumns = `id, issue_key, summary, status, updated, updated_label, link, created_at, is_read`

// Newest first; ties on created_at fall back to id so pages are stable
const alertOrder = `ORDER BY created_at DESC, id ASC`

// ListAlerts returns alert items newest first. limit <= 0 returns all.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, limit int) ([]types.AlertItem, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_items ` + alertOrder
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []types.AlertItem
	for rows.Next() {
		item, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return items, nil
}

func scanAlert(rows *sql.Rows) (types.AlertItem, error) {
	var (
		item      types.AlertItem
		createdAt int64
		isRead    int
	)
	err := rows.Scan(&item.ID, &item.Key, &item.Summary, &item.Status, &item.Updated,
		&item.UpdatedLabel, &item.Link, &createdAt, &isRead)
	if err != nil {
		return item, fmt.Errorf("failed to scan alert: %w", err)
	}
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.IsRead = isRead != 0
	return item, nil
}

// CountAlerts returns the number of persisted alert items
func (s *SQLiteStorage) CountAlerts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// CountUnread returns the number of unread alert items
func (s *SQLiteStorage) CountUnread(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_items WHERE is_read = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return n, nil
}

// UpsertAlerts inserts items, replacing any existing item with the same id
func (s *SQLiteStorage) UpsertAlerts(ctx context.Context, items []types.AlertItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alert_items (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			issue_key = excluded.issue_key,
			summary = excluded.summary,
			status = excluded.status,
			updated = excluded.updated,
			updated_label = excluded.updated_label,
			link = excluded.link,
			created_at = excluded.created_at,
			is_read = excluded.is_read
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare alert upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx, item.ID, item.Key, item.Summary, item.Status, item.Updated,
			item.UpdatedLabel, item.Link, item.CreatedAt.UnixMilli(), boolToInt(item.IsRead))
		if err != nil {
			return fmt.Errorf("failed to upsert alert %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// SetRead flips the read flag of one item. It reports whether the item exists.
func (s *SQLiteStorage) SetRead(ctx context.Context, id string, read bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE alert_items SET is_read = ? WHERE id = ?`, boolToInt(read), id)
	if err != nil {
		return false, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// SetAllRead marks every item read and returns how many changed
func (s *SQLiteStorage) SetAllRead(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE alert_items SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alerts read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteAlert removes one item. It reports whether the item existed.
func (s *SQLiteStorage) DeleteAlert(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteReadAlerts removes every read item and returns how many were removed
func (s *SQLiteStorage) DeleteReadAlerts(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_items WHERE is_read = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete read alerts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

// TrimAlerts keeps the newest keep items and deletes the rest
func (s *SQLiteStorage) TrimAlerts(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM alert_items WHERE id NOT IN (
			SELECT id FROM alert_items `+alertOrder+` LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim alerts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
