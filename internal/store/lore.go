package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const loreColumns = `id, title, entity_id, content, summary, status, status_note, current_version, created_by, updated_by, created_at, updated_at`

func scanLore(row scanner, item *LoreEntry, extra ...any) error {
	var entityID sql.NullString
	dest := []any{
		&item.ID,
		&item.Title,
		&entityID,
		&item.Content,
		&item.Summary,
		&item.Status,
		&item.StatusNote,
		&item.CurrentVersion,
		&item.CreatedBy,
		&item.UpdatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	item.EntityID = stringPtr(entityID)
	return nil
}

func insertLoreVersion(ctx context.Context, q queryer, version *LoreVersion) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO lore_versions (id, lore_id, version, title, content, author, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, version.ID, version.LoreID, version.Version, version.Title, version.Content, version.Author, version.Note).Scan(&version.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lore version: %w", err)
	}
	return nil
}

// CreateLore writes the entry together with its first version.
func (s *PostgresStore) CreateLore(ctx context.Context, item LoreEntry, version LoreVersion) (LoreEntry, LoreVersion, error) {
	item.CurrentVersion = 1
	version.LoreID = item.ID
	version.Version = 1
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO lore_entries (id, title, entity_id, content, summary, status, current_version, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
			RETURNING created_at, updated_at
		`, item.ID, item.Title, nullString(item.EntityID), item.Content, item.Summary, item.Status, item.CreatedBy).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("insert lore entry: %w", err)
		}
		if err := insertLoreVersion(ctx, tx, &version); err != nil {
			return err
		}
		return replaceTags(ctx, tx, loreTags, item.ID, item.Tags)
	})
	if err != nil {
		return LoreEntry{}, LoreVersion{}, err
	}
	item.UpdatedBy = item.CreatedBy
	return item, version, nil
}

func (s *PostgresStore) GetLore(ctx context.Context, loreID string) (LoreEntry, error) {
	var item LoreEntry
	row := s.db.QueryRowContext(ctx, `SELECT `+loreColumns+` FROM lore_entries WHERE id=$1`, loreID)
	if err := scanLore(row, &item); err != nil {
		return LoreEntry{}, err
	}
	tags, err := loadTags(ctx, s.db, loreTags, []string{item.ID})
	if err != nil {
		return LoreEntry{}, err
	}
	item.Tags = tagsOrEmpty(tags, item.ID)
	return item, nil
}

func (s *PostgresStore) ListLore(ctx context.Context, filter LoreFilter) ([]LoreEntry, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+loreColumns+`, COUNT(*) OVER() AS total
		FROM lore_entries l
		WHERE ($1='' OR l.entity_id=$1)
		  AND ($2='' OR l.status=$2)
		  AND ($3='' OR EXISTS(SELECT 1 FROM lore_entry_tags t WHERE t.lore_id=l.id AND t.tag=$3))
		  AND ($4='' OR l.title ILIKE '%' || $4 || '%' OR l.summary ILIKE '%' || $4 || '%')
		ORDER BY l.updated_at DESC, l.id
		LIMIT $5 OFFSET $6
	`, filter.EntityID, filter.Status, filter.Tag, filter.Query, pageLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("list lore entries: %w", err)
	}
	defer rows.Close()

	items := make([]LoreEntry, 0)
	ids := make([]string, 0)
	total := 0
	for rows.Next() {
		var item LoreEntry
		if err := scanLore(rows, &item, &total); err != nil {
			return nil, 0, fmt.Errorf("scan lore entry: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate lore entries: %w", err)
	}

	tags, err := loadTags(ctx, s.db, loreTags, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Tags = tagsOrEmpty(tags, items[i].ID)
	}
	return items, total, nil
}

// UpdateLore saves the entry. When version is non-nil it is appended as the
// next version number, computed under a row lock, and returned filled in.
func (s *PostgresStore) UpdateLore(ctx context.Context, item LoreEntry, version *LoreVersion) (LoreEntry, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		if err := tx.QueryRowContext(ctx, `SELECT current_version FROM lore_entries WHERE id=$1 FOR UPDATE`, item.ID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock lore entry: %w", err)
		}
		item.CurrentVersion = current
		if version != nil {
			item.CurrentVersion = current + 1
			version.LoreID = item.ID
			version.Version = item.CurrentVersion
			if err := insertLoreVersion(ctx, tx, version); err != nil {
				return err
			}
		}

		err := tx.QueryRowContext(ctx, `
			UPDATE lore_entries
			SET title=$2, entity_id=$3, content=$4, summary=$5, current_version=$6, updated_by=$7, updated_at=NOW()
			WHERE id=$1
			RETURNING created_at, updated_at, created_by, status, status_note
		`, item.ID, item.Title, nullString(item.EntityID), item.Content, item.Summary, item.CurrentVersion, item.UpdatedBy).
			Scan(&item.CreatedAt, &item.UpdatedAt, &item.CreatedBy, &item.Status, &item.StatusNote)
		if err != nil {
			if isForeignKeyViolation(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("update lore entry: %w", err)
		}
		return replaceTags(ctx, tx, loreTags, item.ID, item.Tags)
	})
	if err != nil {
		return LoreEntry{}, err
	}
	return item, nil
}

// ListLoreVersions returns version metadata newest first. Content is omitted.
func (s *PostgresStore) ListLoreVersions(ctx context.Context, loreID string) ([]LoreVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lore_id, version, title, author, note, created_at
		FROM lore_versions
		WHERE lore_id=$1
		ORDER BY version DESC
	`, loreID)
	if err != nil {
		return nil, fmt.Errorf("list lore versions: %w", err)
	}
	defer rows.Close()

	items := make([]LoreVersion, 0)
	for rows.Next() {
		var item LoreVersion
		if err := rows.Scan(&item.ID, &item.LoreID, &item.Version, &item.Title, &item.Author, &item.Note, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lore version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lore versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLoreVersion(ctx context.Context, loreID string, version int) (LoreVersion, error) {
	var item LoreVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, lore_id, version, title, content, author, note, created_at
		FROM lore_versions
		WHERE lore_id=$1 AND version=$2
	`, loreID, version).Scan(&item.ID, &item.LoreID, &item.Version, &item.Title, &item.Content, &item.Author, &item.Note, &item.CreatedAt)
	if err != nil {
		return LoreVersion{}, err
	}
	return item, nil
}

func (s *PostgresStore) SetLoreStatus(ctx context.Context, change StatusChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := setStatus(ctx, tx, "lore_entries", change); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE lore_entries SET updated_by=$2 WHERE id=$1`, change.ID, change.By); err != nil {
			return fmt.Errorf("update lore status author: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteLore(ctx context.Context, loreID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteComments(ctx, tx, KindLore, loreID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM lore_entries WHERE id=$1`, loreID)
		if err != nil {
			return fmt.Errorf("delete lore entry: %w", err)
		}
		return expectRows(res)
	})
}
