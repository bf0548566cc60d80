package app

import (
	"context"
	"io"
	"net/http"
	"strings"

	"forgeboard/internal/media"
	"forgeboard/internal/search"
	"forgeboard/internal/store"
	"forgeboard/internal/tags"
	"forgeboard/internal/util"
	"forgeboard/internal/workflow"

	"go.uber.org/zap"
)

func (s *Service) ListArt(ctx context.Context, filter store.ArtFilter) (map[string]any, error) {
	items, total, err := s.store.ListArt(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, artPayload(item, s.imageURL(ctx, item)))
	}
	return map[string]any{"art": payload, "total": total}, nil
}

func (s *Service) CreateArt(ctx context.Context, sess Session, input ArtInput) (map[string]any, error) {
	if input.Title == nil {
		return nil, validationError("title", "title is required")
	}
	item := store.ConceptArt{
		ID:         util.NewID("art"),
		Status:     string(workflow.StatusDraft),
		UploadedBy: sess.UserName,
	}
	if err := s.applyArtInput(ctx, &item, input); err != nil {
		return nil, err
	}
	created, err := s.store.CreateArt(ctx, item)
	if err != nil {
		return nil, err
	}
	s.index(artRecord(created))
	return artPayload(created, ""), nil
}

func (s *Service) GetArt(ctx context.Context, artID string) (map[string]any, error) {
	item, err := s.store.GetArt(ctx, artID)
	if err != nil {
		return nil, err
	}
	commentCount, err := s.store.CountComments(ctx, store.KindArt, artID)
	if err != nil {
		return nil, err
	}
	payload := artPayload(item, s.imageURL(ctx, item))
	payload["commentCount"] = commentCount
	return payload, nil
}

func (s *Service) UpdateArt(ctx context.Context, artID string, input ArtInput) (map[string]any, error) {
	item, err := s.store.GetArt(ctx, artID)
	if err != nil {
		return nil, err
	}
	if err := s.applyArtInput(ctx, &item, input); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateArt(ctx, item)
	if err != nil {
		return nil, err
	}
	s.index(artRecord(updated))
	return artPayload(updated, s.imageURL(ctx, updated)), nil
}

func (s *Service) applyArtInput(ctx context.Context, item *store.ConceptArt, input ArtInput) error {
	if input.Title != nil {
		title, err := requireText("title", *input.Title, maxNameLength)
		if err != nil {
			return err
		}
		item.Title = title
	}
	if input.Description != nil {
		item.Description = *input.Description
	}
	if input.EntityID.Set {
		entityID, err := s.checkEntityRef(ctx, input.EntityID.Value)
		if err != nil {
			return err
		}
		item.EntityID = entityID
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

// UploadArtImage stores body as the art item's image and removes the object
// it replaces. contentType must already be sniffed and accepted.
func (s *Service) UploadArtImage(ctx context.Context, artID string, body io.Reader, size int64, contentType string) (map[string]any, error) {
	if s.media == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
	}
	if _, err := s.store.GetArt(ctx, artID); err != nil {
		return nil, err
	}

	key := media.ObjectKey(artID, contentType)
	if err := s.media.Put(ctx, key, body, size, contentType); err != nil {
		return nil, err
	}
	previous, err := s.store.SetArtImage(ctx, artID, key, contentType, size)
	if err != nil {
		s.removeObject(key)
		return nil, err
	}
	if previous != "" && previous != key {
		s.removeObject(previous)
	}
	return s.GetArt(ctx, artID)
}

func (s *Service) SetArtStatus(ctx context.Context, sess Session, artID string, input StatusInput) (map[string]any, error) {
	item, err := s.store.GetArt(ctx, artID)
	if err != nil {
		return nil, err
	}
	next, note, err := s.transition(sess, item.Status, input)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetArtStatus(ctx, store.StatusChange{ID: artID, From: item.Status, To: string(next), Note: note}); err != nil {
		return nil, err
	}
	updated, err := s.store.GetArt(ctx, artID)
	if err != nil {
		return nil, err
	}
	s.index(artRecord(updated))
	return artPayload(updated, s.imageURL(ctx, updated)), nil
}

// DeleteArt removes the record, then its image object best-effort.
func (s *Service) DeleteArt(ctx context.Context, artID string) error {
	item, err := s.store.GetArt(ctx, artID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteArt(ctx, artID); err != nil {
		return err
	}
	if item.ImageKey != "" {
		s.removeObject(item.ImageKey)
	}
	s.unindex(search.ResultArt, artID)
	return nil
}

func (s *Service) imageURL(ctx context.Context, item store.ConceptArt) string {
	if s.media == nil || strings.TrimSpace(item.ImageKey) == "" {
		return ""
	}
	url, err := s.media.PresignedURL(ctx, item.ImageKey)
	if err != nil {
		s.logger.Warn("presign art image", zap.String("art_id", item.ID), zap.Error(err))
		return ""
	}
	return url
}

func (s *Service) removeObject(key string) {
	if s.media == nil {
		return
	}
	if err := s.media.Remove(context.Background(), key); err != nil {
		s.logger.Warn("remove art object", zap.String("key", key), zap.Error(err))
	}
}
