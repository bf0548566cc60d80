package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const entityColumns = `id, code, name, category, summary, description, attributes, status, status_note, created_by, updated_by, created_at, updated_at`

func scanEntity(row scanner, item *Entity, extra ...any) error {
	var attributesRaw []byte
	dest := []any{
		&item.ID,
		&item.Code,
		&item.Name,
		&item.Category,
		&item.Summary,
		&item.Description,
		&attributesRaw,
		&item.Status,
		&item.StatusNote,
		&item.CreatedBy,
		&item.UpdatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	item.Attributes = map[string]string{}
	if len(attributesRaw) > 0 {
		if err := json.Unmarshal(attributesRaw, &item.Attributes); err != nil {
			return fmt.Errorf("decode entity attributes: %w", err)
		}
	}
	return nil
}

func encodeAttributes(attributes map[string]string) (string, error) {
	if attributes == nil {
		attributes = map[string]string{}
	}
	raw, err := json.Marshal(attributes)
	if err != nil {
		return "", fmt.Errorf("encode entity attributes: %w", err)
	}
	return string(raw), nil
}

func (s *PostgresStore) CreateEntity(ctx context.Context, item Entity) (Entity, error) {
	attributes, err := encodeAttributes(item.Attributes)
	if err != nil {
		return Entity{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO game_entities (id, code, name, category, summary, description, attributes, status, created_by, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $9)
			RETURNING created_at, updated_at
		`, item.ID, item.Code, item.Name, item.Category, item.Summary, item.Description, attributes, item.Status, item.CreatedBy).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCodeTaken
			}
			return fmt.Errorf("insert entity: %w", err)
		}
		return replaceTags(ctx, tx, entityTags, item.ID, item.Tags)
	})
	if err != nil {
		return Entity{}, err
	}
	item.UpdatedBy = item.CreatedBy
	return item, nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, entityID string) (Entity, error) {
	var item Entity
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM game_entities WHERE id=$1`, entityID)
	if err := scanEntity(row, &item); err != nil {
		return Entity{}, err
	}
	tags, err := loadTags(ctx, s.db, entityTags, []string{item.ID})
	if err != nil {
		return Entity{}, err
	}
	item.Tags = tagsOrEmpty(tags, item.ID)
	return item, nil
}

// GetEntityByCode looks up an entity by its unique code.
func (s *PostgresStore) GetEntityByCode(ctx context.Context, code string) (Entity, error) {
	var item Entity
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM game_entities WHERE code=$1`, code)
	if err := scanEntity(row, &item); err != nil {
		return Entity{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter) ([]Entity, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+`, COUNT(*) OVER() AS total
		FROM game_entities e
		WHERE ($1='' OR e.category=$1)
		  AND ($2='' OR e.status=$2)
		  AND ($3='' OR EXISTS(SELECT 1 FROM entity_tags t WHERE t.entity_id=e.id AND t.tag=$3))
		  AND ($4='' OR e.name ILIKE '%' || $4 || '%' OR e.code ILIKE '%' || $4 || '%' OR e.summary ILIKE '%' || $4 || '%')
		ORDER BY e.updated_at DESC, e.id
		LIMIT $5 OFFSET $6
	`, filter.Category, filter.Status, filter.Tag, filter.Query, pageLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	items := make([]Entity, 0)
	ids := make([]string, 0)
	total := 0
	for rows.Next() {
		var item Entity
		if err := scanEntity(rows, &item, &total); err != nil {
			return nil, 0, fmt.Errorf("scan entity: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate entities: %w", err)
	}

	tags, err := loadTags(ctx, s.db, entityTags, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Tags = tagsOrEmpty(tags, items[i].ID)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, item Entity) (Entity, error) {
	attributes, err := encodeAttributes(item.Attributes)
	if err != nil {
		return Entity{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE game_entities
			SET code=$2, name=$3, category=$4, summary=$5, description=$6, attributes=$7::jsonb, updated_by=$8, updated_at=NOW()
			WHERE id=$1
			RETURNING created_at, updated_at
		`, item.ID, item.Code, item.Name, item.Category, item.Summary, item.Description, attributes, item.UpdatedBy).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrCodeTaken
			}
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("update entity: %w", err)
		}
		return replaceTags(ctx, tx, entityTags, item.ID, item.Tags)
	})
	if err != nil {
		return Entity{}, err
	}
	return item, nil
}

func (s *PostgresStore) SetEntityStatus(ctx context.Context, change StatusChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := setStatus(ctx, tx, "game_entities", change); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE game_entities SET updated_by=$2 WHERE id=$1`, change.ID, change.By); err != nil {
			return fmt.Errorf("update entity status author: %w", err)
		}
		return nil
	})
}

// DeleteEntity removes the entity with its comments. Links and tag joins
// cascade; art, lore and thoughts keep their rows with entity_id cleared.
func (s *PostgresStore) DeleteEntity(ctx context.Context, entityID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteComments(ctx, tx, KindEntity, entityID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM game_entities WHERE id=$1`, entityID)
		if err != nil {
			return fmt.Errorf("delete entity: %w", err)
		}
		return expectRows(res)
	})
}

func (s *PostgresStore) CreateEntityLink(ctx context.Context, link EntityLink) (EntityLink, error) {
	err := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO entity_links (id, source_id, target_id, relation, note, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING source_id, target_id, created_at
		)
		SELECT src.name, dst.name, inserted.created_at
		FROM inserted
		JOIN game_entities src ON src.id = inserted.source_id
		JOIN game_entities dst ON dst.id = inserted.target_id
	`, link.ID, link.SourceID, link.TargetID, link.Relation, link.Note, link.CreatedBy).Scan(&link.SourceName, &link.TargetName, &link.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return EntityLink{}, ErrLinkExists
		}
		if isForeignKeyViolation(err) {
			return EntityLink{}, sql.ErrNoRows
		}
		return EntityLink{}, fmt.Errorf("insert entity link: %w", err)
	}
	return link, nil
}

// ListEntityLinks returns outgoing and incoming links of an entity.
func (s *PostgresStore) ListEntityLinks(ctx context.Context, entityID string) ([]EntityLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.source_id, src.name, l.target_id, dst.name, l.relation, l.note, l.created_by, l.created_at
		FROM entity_links l
		JOIN game_entities src ON src.id = l.source_id
		JOIN game_entities dst ON dst.id = l.target_id
		WHERE l.source_id=$1 OR l.target_id=$1
		ORDER BY l.created_at ASC, l.id
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list entity links: %w", err)
	}
	defer rows.Close()

	items := make([]EntityLink, 0)
	for rows.Next() {
		var item EntityLink
		if err := rows.Scan(&item.ID, &item.SourceID, &item.SourceName, &item.TargetID, &item.TargetName, &item.Relation, &item.Note, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entity link: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity links: %w", err)
	}
	return items, nil
}

// DeleteEntityLink removes a link touching entityID on either end.
func (s *PostgresStore) DeleteEntityLink(ctx context.Context, entityID, linkID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entity_links
		WHERE id=$1 AND (source_id=$2 OR target_id=$2)
	`, linkID, entityID)
	if err != nil {
		return fmt.Errorf("delete entity link: %w", err)
	}
	return expectRows(res)
}
