package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"forgeboard/internal/store"
	"forgeboard/internal/util"
)

func (s *Service) OnboardingTree(ctx context.Context) (map[string]any, error) {
	cards, err := s.store.ListOnboardingCards(ctx)
	if err != nil {
		return nil, err
	}
	nodes := store.BuildOnboardingTree(cards)
	payload := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		payload = append(payload, onboardingNodePayload(node))
	}
	return map[string]any{"cards": payload, "total": len(cards)}, nil
}

// GetOnboardingCard returns the card with its descendants nested.
func (s *Service) GetOnboardingCard(ctx context.Context, cardID string) (map[string]any, error) {
	cards, err := s.store.ListOnboardingCards(ctx)
	if err != nil {
		return nil, err
	}
	node, ok := store.OnboardingSubtree(cards, cardID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return onboardingNodePayload(node), nil
}

func (s *Service) CreateOnboardingCard(ctx context.Context, input OnboardingInput) (map[string]any, error) {
	if input.Title == nil {
		return nil, validationError("title", "title is required")
	}
	item := store.OnboardingCard{ID: util.NewID("onb")}
	if err := applyOnboardingInput(&item, input); err != nil {
		return nil, err
	}
	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		parentID := strings.TrimSpace(*input.ParentID)
		item.ParentID = &parentID
	}

	created, err := s.store.CreateOnboardingCard(ctx, item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationError("parentId", "parent card not found")
		}
		return nil, err
	}
	return onboardingPayload(created), nil
}

func (s *Service) UpdateOnboardingCard(ctx context.Context, cardID string, input OnboardingInput) (map[string]any, error) {
	item, err := s.store.GetOnboardingCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := applyOnboardingInput(&item, input); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateOnboardingCard(ctx, item)
	if err != nil {
		return nil, err
	}
	return onboardingPayload(updated), nil
}

func applyOnboardingInput(item *store.OnboardingCard, input OnboardingInput) error {
	if input.Title != nil {
		title, err := requireText("title", *input.Title, maxNameLength)
		if err != nil {
			return err
		}
		item.Title = title
	}
	if input.Body != nil {
		item.Body = *input.Body
	}
	if input.Category != nil {
		item.Category = strings.TrimSpace(*input.Category)
	}
	if input.LinkURL != nil {
		link, err := validateLinkURL(*input.LinkURL)
		if err != nil {
			return err
		}
		item.LinkURL = link
	}
	if input.SortOrder != nil {
		item.SortOrder = *input.SortOrder
	}
	return nil
}

func validateLinkURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", validationError("linkUrl", "linkUrl must be an http or https URL")
	}
	return raw, nil
}

func (s *Service) MoveOnboardingCard(ctx context.Context, cardID string, input MoveInput) (map[string]any, error) {
	var parentID *string
	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		trimmed := strings.TrimSpace(*input.ParentID)
		parentID = &trimmed
	}
	if _, err := s.store.GetOnboardingCard(ctx, cardID); err != nil {
		return nil, err
	}
	if err := s.store.MoveOnboardingCard(ctx, cardID, parentID, input.SortOrder); err != nil {
		if errors.Is(err, store.ErrCycle) {
			return nil, domainError(http.StatusUnprocessableEntity, "CYCLE", "A card cannot be moved under itself or its descendants", nil)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, validationError("parentId", "parent card not found")
		}
		return nil, err
	}
	item, err := s.store.GetOnboardingCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return onboardingPayload(item), nil
}

func (s *Service) DeleteOnboardingCard(ctx context.Context, cardID string) error {
	return s.store.DeleteOnboardingCard(ctx, cardID)
}
