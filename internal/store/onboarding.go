package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const onboardingColumns = `id, parent_id, title, body, category, link_url, sort_order, created_at, updated_at`

func scanOnboardingCard(row scanner, item *OnboardingCard) error {
	var parentID sql.NullString
	if err := row.Scan(&item.ID, &parentID, &item.Title, &item.Body, &item.Category, &item.LinkURL, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return err
	}
	item.ParentID = stringPtr(parentID)
	return nil
}

func (s *PostgresStore) CreateOnboardingCard(ctx context.Context, item OnboardingCard) (OnboardingCard, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO onboarding_cards (id, parent_id, title, body, category, link_url, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, item.ID, nullString(item.ParentID), item.Title, item.Body, item.Category, item.LinkURL, item.SortOrder).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return OnboardingCard{}, sql.ErrNoRows
		}
		return OnboardingCard{}, fmt.Errorf("insert onboarding card: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetOnboardingCard(ctx context.Context, cardID string) (OnboardingCard, error) {
	var item OnboardingCard
	row := s.db.QueryRowContext(ctx, `SELECT `+onboardingColumns+` FROM onboarding_cards WHERE id=$1`, cardID)
	if err := scanOnboardingCard(row, &item); err != nil {
		return OnboardingCard{}, err
	}
	return item, nil
}

// ListOnboardingCards returns every card flat. Use BuildOnboardingTree to nest them.
func (s *PostgresStore) ListOnboardingCards(ctx context.Context) ([]OnboardingCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+onboardingColumns+`
		FROM onboarding_cards
		ORDER BY sort_order ASC, title ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list onboarding cards: %w", err)
	}
	defer rows.Close()

	items := make([]OnboardingCard, 0)
	for rows.Next() {
		var item OnboardingCard
		if err := scanOnboardingCard(rows, &item); err != nil {
			return nil, fmt.Errorf("scan onboarding card: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate onboarding cards: %w", err)
	}
	return items, nil
}

// UpdateOnboardingCard saves content fields. Parent changes go through MoveOnboardingCard.
func (s *PostgresStore) UpdateOnboardingCard(ctx context.Context, item OnboardingCard) (OnboardingCard, error) {
	var parentID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		UPDATE onboarding_cards
		SET title=$2, body=$3, category=$4, link_url=$5, sort_order=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING parent_id, created_at, updated_at
	`, item.ID, item.Title, item.Body, item.Category, item.LinkURL, item.SortOrder).Scan(&parentID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OnboardingCard{}, err
		}
		return OnboardingCard{}, fmt.Errorf("update onboarding card: %w", err)
	}
	item.ParentID = stringPtr(parentID)
	return item, nil
}

// MoveOnboardingCard reparents a card. A nil parent makes it a root. Moving a
// card under itself or one of its descendants returns ErrCycle.
func (s *PostgresStore) MoveOnboardingCard(ctx context.Context, cardID string, parentID *string, sortOrder int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if parentID != nil && *parentID != "" {
			if *parentID == cardID {
				return ErrCycle
			}
			var parentExists, cycle bool
			err := tx.QueryRowContext(ctx, `
				WITH RECURSIVE chain(id, parent_id) AS (
					SELECT id, parent_id FROM onboarding_cards WHERE id = $1
					UNION ALL
					SELECT c.id, c.parent_id
					FROM onboarding_cards c
					JOIN chain ON c.id = chain.parent_id
				)
				SELECT EXISTS(SELECT 1 FROM chain), EXISTS(SELECT 1 FROM chain WHERE id = $2)
			`, *parentID, cardID).Scan(&parentExists, &cycle)
			if err != nil {
				return fmt.Errorf("check onboarding ancestry: %w", err)
			}
			if !parentExists {
				return sql.ErrNoRows
			}
			if cycle {
				return ErrCycle
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE onboarding_cards
			SET parent_id=$2, sort_order=$3, updated_at=NOW()
			WHERE id=$1
		`, cardID, nullString(parentID), sortOrder)
		if err != nil {
			return fmt.Errorf("move onboarding card: %w", err)
		}
		return expectRows(res)
	})
}

// DeleteOnboardingCard removes the card; descendants cascade.
func (s *PostgresStore) DeleteOnboardingCard(ctx context.Context, cardID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM onboarding_cards WHERE id=$1`, cardID)
	if err != nil {
		return fmt.Errorf("delete onboarding card: %w", err)
	}
	return expectRows(res)
}

// BuildOnboardingTree nests cards under their parents. Siblings are ordered by
// sort order then title. Cards whose parent is missing are treated as roots.
func BuildOnboardingTree(cards []OnboardingCard) []OnboardingNode {
	known := make(map[string]bool, len(cards))
	for _, card := range cards {
		known[card.ID] = true
	}
	children := make(map[string][]OnboardingCard)
	roots := make([]OnboardingCard, 0)
	for _, card := range cards {
		if card.ParentID == nil || !known[*card.ParentID] {
			roots = append(roots, card)
			continue
		}
		children[*card.ParentID] = append(children[*card.ParentID], card)
	}

	visited := make(map[string]bool, len(cards))
	var build func(list []OnboardingCard, depth int) []OnboardingNode
	build = func(list []OnboardingCard, depth int) []OnboardingNode {
		sortCards(list)
		nodes := make([]OnboardingNode, 0, len(list))
		for _, card := range list {
			if visited[card.ID] {
				continue
			}
			visited[card.ID] = true
			nodes = append(nodes, OnboardingNode{
				OnboardingCard: card,
				Children:       build(children[card.ID], depth+1),
				Depth:          depth,
			})
		}
		return nodes
	}
	return build(roots, 0)
}

// OnboardingSubtree returns the node for rootID with its descendants.
func OnboardingSubtree(cards []OnboardingCard, rootID string) (OnboardingNode, bool) {
	var find func(nodes []OnboardingNode) (OnboardingNode, bool)
	find = func(nodes []OnboardingNode) (OnboardingNode, bool) {
		for _, node := range nodes {
			if node.ID == rootID {
				return node, true
			}
			if found, ok := find(node.Children); ok {
				return found, true
			}
		}
		return OnboardingNode{}, false
	}
	return find(BuildOnboardingTree(cards))
}

func sortCards(list []OnboardingCard) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return strings.ToLower(list[i].Title) < strings.ToLower(list[j].Title)
	})
}
