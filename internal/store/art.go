package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const artColumns = `id, title, description, entity_id, image_key, content_type, size_bytes, status, status_note, uploaded_by, created_at, updated_at`

func scanArt(row scanner, item *ConceptArt, extra ...any) error {
	var entityID sql.NullString
	dest := []any{
		&item.ID,
		&item.Title,
		&item.Description,
		&entityID,
		&item.ImageKey,
		&item.ContentType,
		&item.SizeBytes,
		&item.Status,
		&item.StatusNote,
		&item.UploadedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	item.EntityID = stringPtr(entityID)
	return nil
}

func (s *PostgresStore) CreateArt(ctx context.Context, item ConceptArt) (ConceptArt, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO concept_art (id, title, description, entity_id, status, uploaded_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`, item.ID, item.Title, item.Description, nullString(item.EntityID), item.Status, item.UploadedBy).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("insert concept art: %w", err)
		}
		return replaceTags(ctx, tx, artTags, item.ID, item.Tags)
	})
	if err != nil {
		return ConceptArt{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetArt(ctx context.Context, artID string) (ConceptArt, error) {
	var item ConceptArt
	row := s.db.QueryRowContext(ctx, `SELECT `+artColumns+` FROM concept_art WHERE id=$1`, artID)
	if err := scanArt(row, &item); err != nil {
		return ConceptArt{}, err
	}
	tags, err := loadTags(ctx, s.db, artTags, []string{item.ID})
	if err != nil {
		return ConceptArt{}, err
	}
	item.Tags = tagsOrEmpty(tags, item.ID)
	return item, nil
}

func (s *PostgresStore) ListArt(ctx context.Context, filter ArtFilter) ([]ConceptArt, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artColumns+`, COUNT(*) OVER() AS total
		FROM concept_art a
		WHERE ($1='' OR a.entity_id=$1)
		  AND ($2='' OR a.status=$2)
		  AND ($3='' OR EXISTS(SELECT 1 FROM concept_art_tags t WHERE t.art_id=a.id AND t.tag=$3))
		ORDER BY a.updated_at DESC, a.id
		LIMIT $4 OFFSET $5
	`, filter.EntityID, filter.Status, filter.Tag, pageLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("list concept art: %w", err)
	}
	defer rows.Close()

	items := make([]ConceptArt, 0)
	ids := make([]string, 0)
	total := 0
	for rows.Next() {
		var item ConceptArt
		if err := scanArt(rows, &item, &total); err != nil {
			return nil, 0, fmt.Errorf("scan concept art: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate concept art: %w", err)
	}

	tags, err := loadTags(ctx, s.db, artTags, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Tags = tagsOrEmpty(tags, items[i].ID)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateArt(ctx context.Context, item ConceptArt) (ConceptArt, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE concept_art
			SET title=$2, description=$3, entity_id=$4, updated_at=NOW()
			WHERE id=$1
			RETURNING created_at, updated_at
		`, item.ID, item.Title, item.Description, nullString(item.EntityID)).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || isForeignKeyViolation(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("update concept art: %w", err)
		}
		return replaceTags(ctx, tx, artTags, item.ID, item.Tags)
	})
	if err != nil {
		return ConceptArt{}, err
	}
	return item, nil
}

// SetArtImage records the stored object for an art item and returns the
// previous object key, empty when there was none.
func (s *PostgresStore) SetArtImage(ctx context.Context, artID, imageKey, contentType string, sizeBytes int64) (string, error) {
	var previous string
	err := s.db.QueryRowContext(ctx, `
		UPDATE concept_art AS a
		SET image_key=$2, content_type=$3, size_bytes=$4, updated_at=NOW()
		FROM (SELECT id, image_key FROM concept_art WHERE id=$1 FOR UPDATE) AS old
		WHERE a.id = old.id
		RETURNING old.image_key
	`, artID, imageKey, contentType, sizeBytes).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("set art image: %w", err)
	}
	return previous, nil
}

func (s *PostgresStore) SetArtStatus(ctx context.Context, change StatusChange) error {
	return setStatus(ctx, s.db, "concept_art", change)
}

func (s *PostgresStore) DeleteArt(ctx context.Context, artID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteComments(ctx, tx, KindArt, artID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM concept_art WHERE id=$1`, artID)
		if err != nil {
			return fmt.Errorf("delete concept art: %w", err)
		}
		return expectRows(res)
	})
}
