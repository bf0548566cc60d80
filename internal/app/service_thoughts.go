package app

import (
	"context"
	"strings"
	"time"

	"forgeboard/internal/search"
	"forgeboard/internal/store"
	"forgeboard/internal/tags"
	"forgeboard/internal/util"
)

var thoughtStatuses = map[string]struct{}{
	"open":        {},
	"in_progress": {},
	"blocked":     {},
	"done":        {},
}

var thoughtPriorities = map[string]struct{}{
	"low":      {},
	"medium":   {},
	"high":     {},
	"critical": {},
}

func (s *Service) ListThoughts(ctx context.Context, filter store.ThoughtFilter) (map[string]any, error) {
	if filter.Status != "" {
		if _, ok := thoughtStatuses[filter.Status]; !ok {
			return nil, validationError("status", "unknown thought status")
		}
	}
	if filter.Priority != "" {
		if _, ok := thoughtPriorities[filter.Priority]; !ok {
			return nil, validationError("priority", "unknown priority")
		}
	}
	items, total, err := s.store.ListThoughts(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, thoughtPayload(item))
	}
	return map[string]any{"thoughts": payload, "total": total}, nil
}

func (s *Service) CreateThought(ctx context.Context, sess Session, input ThoughtInput) (map[string]any, error) {
	if input.Title == nil {
		return nil, validationError("title", "title is required")
	}
	item := store.Thought{
		ID:        util.NewID("tht"),
		Status:    "open",
		Priority:  "medium",
		CreatedBy: sess.UserName,
	}
	if err := s.applyThoughtInput(ctx, &item, input); err != nil {
		return nil, err
	}
	created, err := s.store.CreateThought(ctx, item)
	if err != nil {
		return nil, err
	}
	s.index(thoughtRecord(created))
	return thoughtPayload(created), nil
}

func (s *Service) GetThought(ctx context.Context, thoughtID string) (map[string]any, error) {
	item, err := s.store.GetThought(ctx, thoughtID)
	if err != nil {
		return nil, err
	}
	commentCount, err := s.store.CountComments(ctx, store.KindThought, thoughtID)
	if err != nil {
		return nil, err
	}
	payload := thoughtPayload(item)
	payload["commentCount"] = commentCount
	return payload, nil
}

func (s *Service) UpdateThought(ctx context.Context, thoughtID string, input ThoughtInput) (map[string]any, error) {
	item, err := s.store.GetThought(ctx, thoughtID)
	if err != nil {
		return nil, err
	}
	if err := s.applyThoughtInput(ctx, &item, input); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateThought(ctx, item)
	if err != nil {
		return nil, err
	}
	s.index(thoughtRecord(updated))
	return thoughtPayload(updated), nil
}

func (s *Service) applyThoughtInput(ctx context.Context, item *store.Thought, input ThoughtInput) error {
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
	if input.Priority != nil {
		priority := strings.ToLower(strings.TrimSpace(*input.Priority))
		if _, ok := thoughtPriorities[priority]; !ok {
			return validationError("priority", "priority must be one of low, medium, high, critical")
		}
		item.Priority = priority
	}
	if input.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*input.Status))
		if _, ok := thoughtStatuses[status]; !ok {
			return validationError("status", "status must be one of open, in_progress, blocked, done")
		}
		item.Status = status
	}
	if input.Assignee != nil {
		item.Assignee = strings.TrimSpace(*input.Assignee)
	}
	if input.EntityID.Set {
		entityID, err := s.checkEntityRef(ctx, input.EntityID.Value)
		if err != nil {
			return err
		}
		item.EntityID = entityID
	}
	if input.DueAt.Set {
		if input.DueAt.Value == nil || strings.TrimSpace(*input.DueAt.Value) == "" {
			item.DueAt = nil
		} else {
			due, err := parseRFC3339(strings.TrimSpace(*input.DueAt.Value))
			if err != nil {
				return validationError("dueAt", "dueAt must be an RFC3339 timestamp")
			}
			due = due.UTC()
			item.DueAt = &due
		}
	}
	if input.Tags != nil {
		normalized, err := tags.Normalize(*input.Tags)
		if err != nil {
			return err
		}
		item.Tags = normalized
	}
	return nil
}

// SetThoughtStatus accepts any valid thought status; thoughts have no review
// workflow.
func (s *Service) SetThoughtStatus(ctx context.Context, thoughtID, status string) (map[string]any, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if _, ok := thoughtStatuses[status]; !ok {
		return nil, validationError("status", "status must be one of open, in_progress, blocked, done")
	}
	if err := s.store.SetThoughtStatus(ctx, thoughtID, status); err != nil {
		return nil, err
	}
	updated, err := s.store.GetThought(ctx, thoughtID)
	if err != nil {
		return nil, err
	}
	s.index(thoughtRecord(updated))
	return thoughtPayload(updated), nil
}

func (s *Service) DeleteThought(ctx context.Context, thoughtID string) error {
	if err := s.store.DeleteThought(ctx, thoughtID); err != nil {
		return err
	}
	s.unindex(search.ResultThought, thoughtID)
	return nil
}

// parseRFC3339 parses a time string in RFC3339 format, tolerating milliseconds
// from JavaScript's Date.toISOString() (e.g. "2026-03-12T16:10:00.000Z").
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t, err
}
