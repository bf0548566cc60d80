package store

import (
	"context"
	"fmt"
)

// CountByStatus groups the records of one kind by status.
func (s *PostgresStore) CountByStatus(ctx context.Context, kind string) ([]StatusCount, error) {
	table, ok := kindTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM `+table+`
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count %s by status: %w", kind, err)
	}
	defer rows.Close()

	items := make([]StatusCount, 0)
	for rows.Next() {
		var item StatusCount
		if err := rows.Scan(&item.Status, &item.Count); err != nil {
			return nil, fmt.Errorf("scan %s status count: %w", kind, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s status counts: %w", kind, err)
	}
	return items, nil
}

// RecentItems returns the most recently updated records of one kind.
func (s *PostgresStore) RecentItems(ctx context.Context, kind string, limit int) ([]RecentItem, error) {
	table, ok := kindTables[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	titleColumn := "title"
	if kind == KindEntity {
		titleColumn = "name"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, `+titleColumn+`, status, updated_at
		FROM `+table+`
		ORDER BY updated_at DESC, id
		LIMIT $1
	`, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", kind, err)
	}
	defer rows.Close()

	items := make([]RecentItem, 0)
	for rows.Next() {
		var item RecentItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Status, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recent %s: %w", kind, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent %s: %w", kind, err)
	}
	return items, nil
}

// OpenThoughtsByPriority counts thoughts not yet done, per priority.
func (s *PostgresStore) OpenThoughtsByPriority(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*)
		FROM thoughts
		WHERE status <> 'done'
		GROUP BY priority
	`)
	if err != nil {
		return nil, fmt.Errorf("count open thoughts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0}
	for rows.Next() {
		var priority string
		var count int
		if err := rows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("scan open thought count: %w", err)
		}
		counts[priority] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open thought counts: %w", err)
	}
	return counts, nil
}
