package sqlite

import (
	"context"
	"fmt"
	"time"
)

// SeenMarkers returns every stored marker with its first-seen time
func (s *SQLiteStorage) SeenMarkers(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT marker, seen_at FROM seen_markers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load seen markers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var (
			marker string
			seenAt int64
		)
		if err := rows.Scan(&marker, &seenAt); err != nil {
			return nil, fmt.Errorf("failed to scan seen marker: %w", err)
		}
		seen[marker] = time.UnixMilli(seenAt).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seen markers: %w", err)
	}
	return seen, nil
}

// MarkSeen records markers. An already stored marker keeps its original time.
func (s *SQLiteStorage) MarkSeen(ctx context.Context, markers map[string]time.Time) error {
	if len(markers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO seen_markers (marker, seen_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare marker insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for marker, at := range markers {
		if _, err := stmt.ExecContext(ctx, marker, at.UnixMilli()); err != nil {
			return fmt.Errorf("failed to mark %s seen: %w", marker, err)
		}
	}

	return tx.Commit()
}

// TrimSeen keeps the keep most recently seen markers
func (s *SQLiteStorage) TrimSeen(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM seen_markers WHERE marker NOT IN (
			SELECT marker FROM seen_markers ORDER BY seen_at DESC, marker DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim seen markers: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}
