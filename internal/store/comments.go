package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func scanComment(row scanner, item *Comment) error {
	var editedAt sql.NullTime
	if err := row.Scan(&item.ID, &item.TargetType, &item.TargetID, &item.Author, &item.Body, &item.CreatedAt, &editedAt); err != nil {
		return err
	}
	if editedAt.Valid {
		edited := editedAt.Time
		item.EditedAt = &edited
	}
	return nil
}

// ListComments returns comments on one target, oldest first.
func (s *PostgresStore) ListComments(ctx context.Context, targetType, targetID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_type, target_id, author, body, created_at, edited_at
		FROM comments
		WHERE target_type=$1 AND target_id=$2
		ORDER BY created_at ASC, id ASC
	`, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := scanComment(rows, &item); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountComments(ctx context.Context, targetType, targetID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE target_type=$1 AND target_id=$2`, targetType, targetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, item Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (id, target_type, target_id, author, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, item.ID, item.TargetType, item.TargetID, item.Author, item.Body).Scan(&item.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_type, target_id, author, body, created_at, edited_at
		FROM comments
		WHERE id=$1
	`, commentID)
	if err := scanComment(row, &item); err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, body string) (Comment, error) {
	var item Comment
	row := s.db.QueryRowContext(ctx, `
		UPDATE comments
		SET body=$2, edited_at=NOW()
		WHERE id=$1
		RETURNING id, target_type, target_id, author, body, created_at, edited_at
	`, commentID, body)
	if err := scanComment(row, &item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comment{}, err
		}
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return expectRows(res)
}
