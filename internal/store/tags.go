package store

import (
	"context"
	"fmt"
)

type tagJoin struct {
	table  string
	column string
}

var (
	entityTags  = tagJoin{table: "entity_tags", column: "entity_id"}
	artTags     = tagJoin{table: "concept_art_tags", column: "art_id"}
	loreTags    = tagJoin{table: "lore_entry_tags", column: "lore_id"}
	thoughtTags = tagJoin{table: "thought_tags", column: "thought_id"}
)

// replaceTags swaps the full tag set of one owner row.
func replaceTags(ctx context.Context, q queryer, join tagJoin, ownerID string, tags []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+join.table+` WHERE `+join.column+`=$1`, ownerID); err != nil {
		return fmt.Errorf("clear %s: %w", join.table, err)
	}
	for _, tag := range tags {
		if _, err := q.ExecContext(ctx, `INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, tag); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO `+join.table+` (`+join.column+`, tag)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, ownerID, tag); err != nil {
			return fmt.Errorf("insert %s: %w", join.table, err)
		}
	}
	return nil
}

// loadTags returns tags per owner id, sorted by name.
func loadTags(ctx context.Context, q queryer, join tagJoin, ownerIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+join.column+`, tag
		FROM `+join.table+`
		WHERE `+join.column+` = ANY($1)
		ORDER BY tag
	`, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", join.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID, tag string
		if err := rows.Scan(&ownerID, &tag); err != nil {
			return nil, fmt.Errorf("scan %s: %w", join.table, err)
		}
		out[ownerID] = append(out[ownerID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", join.table, err)
	}
	return out, nil
}

func tagsOrEmpty(byOwner map[string][]string, ownerID string) []string {
	if tags, ok := byOwner[ownerID]; ok {
		return tags
	}
	return []string{}
}

// ListTags returns every tag in use with the number of records carrying it.
func (s *PostgresStore) ListTags(ctx context.Context) ([]TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS uses
		FROM (
			SELECT tag FROM entity_tags
			UNION ALL SELECT tag FROM concept_art_tags
			UNION ALL SELECT tag FROM lore_entry_tags
			UNION ALL SELECT tag FROM thought_tags
		) used
		GROUP BY tag
		ORDER BY uses DESC, tag ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]TagCount, 0)
	for rows.Next() {
		var item TagCount
		if err := rows.Scan(&item.Name, &item.Count); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}
