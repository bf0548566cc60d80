package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const thoughtColumns = `id, title, body, status, priority, entity_id, assignee, due_at, created_by, created_at, updated_at`

func scanThought(row scanner, item *Thought, extra ...any) error {
	var entityID sql.NullString
	var dueAt sql.NullTime
	dest := []any{
		&item.ID,
		&item.Title,
		&item.Body,
		&item.Status,
		&item.Priority,
		&entityID,
		&item.Assignee,
		&dueAt,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	item.EntityID = stringPtr(entityID)
	if dueAt.Valid {
		due := dueAt.Time
		item.DueAt = &due
	}
	return nil
}

func dueArg(item Thought) any {
	if item.DueAt == nil {
		return nil
	}
	return *item.DueAt
}

func (s *PostgresStore) CreateThought(ctx context.Context, item Thought) (Thought, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO thoughts (id, title, body, status, priority, entity_id, assignee, due_at, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at
		`, item.ID, item.Title, item.Body, item.Status, item.Priority, nullString(item.EntityID), item.Assignee, dueArg(item), item.CreatedBy).Scan(&item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("insert thought: %w", err)
		}
		return replaceTags(ctx, tx, thoughtTags, item.ID, item.Tags)
	})
	if err != nil {
		return Thought{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetThought(ctx context.Context, thoughtID string) (Thought, error) {
	var item Thought
	row := s.db.QueryRowContext(ctx, `SELECT `+thoughtColumns+` FROM thoughts WHERE id=$1`, thoughtID)
	if err := scanThought(row, &item); err != nil {
		return Thought{}, err
	}
	tags, err := loadTags(ctx, s.db, thoughtTags, []string{item.ID})
	if err != nil {
		return Thought{}, err
	}
	item.Tags = tagsOrEmpty(tags, item.ID)
	return item, nil
}

// ListThoughts orders by priority, most urgent first, then by recency.
func (s *PostgresStore) ListThoughts(ctx context.Context, filter ThoughtFilter) ([]Thought, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+thoughtColumns+`, COUNT(*) OVER() AS total
		FROM thoughts th
		WHERE ($1='' OR th.status=$1)
		  AND ($2='' OR th.priority=$2)
		  AND ($3='' OR th.assignee=$3)
		  AND ($4='' OR EXISTS(SELECT 1 FROM thought_tags t WHERE t.thought_id=th.id AND t.tag=$4))
		  AND ($5='' OR th.entity_id=$5)
		ORDER BY CASE th.priority
				WHEN 'critical' THEN 4
				WHEN 'high' THEN 3
				WHEN 'medium' THEN 2
				ELSE 1
			END DESC,
			th.updated_at DESC,
			th.id
		LIMIT $6 OFFSET $7
	`, filter.Status, filter.Priority, filter.Assignee, filter.Tag, filter.EntityID, pageLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("list thoughts: %w", err)
	}
	defer rows.Close()

	items := make([]Thought, 0)
	ids := make([]string, 0)
	total := 0
	for rows.Next() {
		var item Thought
		if err := scanThought(rows, &item, &total); err != nil {
			return nil, 0, fmt.Errorf("scan thought: %w", err)
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate thoughts: %w", err)
	}

	tags, err := loadTags(ctx, s.db, thoughtTags, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Tags = tagsOrEmpty(tags, items[i].ID)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateThought(ctx context.Context, item Thought) (Thought, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			UPDATE thoughts
			SET title=$2, body=$3, status=$4, priority=$5, entity_id=$6, assignee=$7, due_at=$8, updated_at=NOW()
			WHERE id=$1
			RETURNING created_by, created_at, updated_at
		`, item.ID, item.Title, item.Body, item.Status, item.Priority, nullString(item.EntityID), item.Assignee, dueArg(item)).
			Scan(&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || isForeignKeyViolation(err) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("update thought: %w", err)
		}
		return replaceTags(ctx, tx, thoughtTags, item.ID, item.Tags)
	})
	if err != nil {
		return Thought{}, err
	}
	return item, nil
}

func (s *PostgresStore) SetThoughtStatus(ctx context.Context, thoughtID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE thoughts SET status=$2, updated_at=NOW() WHERE id=$1`, thoughtID, status)
	if err != nil {
		return fmt.Errorf("set thought status: %w", err)
	}
	return expectRows(res)
}

func (s *PostgresStore) DeleteThought(ctx context.Context, thoughtID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteComments(ctx, tx, KindThought, thoughtID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM thoughts WHERE id=$1`, thoughtID)
		if err != nil {
			return fmt.Errorf("delete thought: %w", err)
		}
		return expectRows(res)
	})
}
