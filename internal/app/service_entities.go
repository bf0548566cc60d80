package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"forgeboard/internal/export"
	"forgeboard/internal/rbac"
	"forgeboard/internal/search"
	"forgeboard/internal/store"
	"forgeboard/internal/tags"
	"forgeboard/internal/util"
	"forgeboard/internal/workflow"
)

const (
	maxNameLength   = 200
	defaultRelation = "related"
)

var (
	entityCodePattern = regexp.MustCompile(`^[A-Z0-9_]{2,64}$`)

	allowedCategories = map[string]struct{}{
		"hero":     {},
		"unit":     {},
		"faction":  {},
		"spell":    {},
		"artifact": {},
		"location": {},
	}
)

func (s *Service) ListEntities(ctx context.Context, filter store.EntityFilter) (map[string]any, error) {
	if filter.Category != "" {
		if _, ok := allowedCategories[filter.Category]; !ok {
			return nil, validationError("category", "unknown category")
		}
	}
	items, total, err := s.store.ListEntities(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, entityPayload(item))
	}
	return map[string]any{"entities": payload, "total": total}, nil
}

func (s *Service) CreateEntity(ctx context.Context, sess Session, input EntityInput) (map[string]any, error) {
	item := store.Entity{
		ID:         util.NewID("ent"),
		Status:     string(workflow.StatusDraft),
		Attributes: map[string]string{},
		CreatedBy:  sess.UserName,
	}
	if input.Code == nil || input.Name == nil || input.Category == nil {
		return nil, validationError(firstMissing(map[string]bool{"code": input.Code == nil, "name": input.Name == nil, "category": input.Category == nil}), "code, name and category are required")
	}
	if err := applyEntityInput(&item, input); err != nil {
		return nil, err
	}

	created, err := s.store.CreateEntity(ctx, item)
	if err != nil {
		return nil, err
	}
	s.index(entityRecord(created))
	return entityPayload(created), nil
}

// GetEntity returns the entity with its links, comment count and the art and
// lore that reference it.
func (s *Service) GetEntity(ctx context.Context, entityID string) (map[string]any, error) {
	item, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	links, err := s.store.ListEntityLinks(ctx, entityID)
	if err != nil {
		return nil, err
	}
	commentCount, err := s.store.CountComments(ctx, store.KindEntity, entityID)
	if err != nil {
		return nil, err
	}
	art, _, err := s.store.ListArt(ctx, store.ArtFilter{EntityID: entityID, Limit: 200})
	if err != nil {
		return nil, err
	}
	lore, _, err := s.store.ListLore(ctx, store.LoreFilter{EntityID: entityID, Limit: 200})
	if err != nil {
		return nil, err
	}

	payload := entityPayload(item)
	linkPayloads := make([]map[string]any, 0, len(links))
	for _, link := range links {
		linkPayloads = append(linkPayloads, linkPayload(link, entityID))
	}
	artRefs := make([]map[string]any, 0, len(art))
	for _, a := range art {
		artRefs = append(artRefs, map[string]any{"id": a.ID, "title": a.Title, "status": a.Status})
	}
	loreRefs := make([]map[string]any, 0, len(lore))
	for _, l := range lore {
		loreRefs = append(loreRefs, map[string]any{"id": l.ID, "title": l.Title, "status": l.Status})
	}
	payload["links"] = linkPayloads
	payload["commentCount"] = commentCount
	payload["art"] = artRefs
	payload["lore"] = loreRefs
	return payload, nil
}

func (s *Service) UpdateEntity(ctx context.Context, sess Session, entityID string, input EntityInput) (map[string]any, error) {
	item, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if err := applyEntityInput(&item, input); err != nil {
		return nil, err
	}
	item.UpdatedBy = sess.UserName

	updated, err := s.store.UpdateEntity(ctx, item)
	if err != nil {
		return nil, err
	}
	s.index(entityRecord(updated))
	return entityPayload(updated), nil
}

func applyEntityInput(item *store.Entity, input EntityInput) error {
	if input.Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*input.Code))
		if !entityCodePattern.MatchString(code) {
			return validationError("code", "code must be 2-64 characters of A-Z, 0-9 and _")
		}
		item.Code = code
	}
	if input.Name != nil {
		name, err := requireText("name", *input.Name, maxNameLength)
		if err != nil {
			return err
		}
		item.Name = name
	}
	if input.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*input.Category))
		if _, ok := allowedCategories[category]; !ok {
			return validationError("category", "category must be one of hero, unit, faction, spell, artifact, location")
		}
		item.Category = category
	}
	if input.Summary != nil {
		item.Summary = strings.TrimSpace(*input.Summary)
	}
	if input.Description != nil {
		item.Description = *input.Description
	}
	if input.Attributes != nil {
		attributes := make(map[string]string, len(*input.Attributes))
		for key, value := range *input.Attributes {
			key = strings.TrimSpace(key)
			if key == "" {
				return validationError("attributes", "attribute keys must not be blank")
			}
			attributes[key] = value
		}
		item.Attributes = attributes
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

// DeleteEntity removes the entity. Art, lore and thoughts that pointed at it
// keep existing with no entity, and their search documents are rewritten to
// match.
func (s *Service) DeleteEntity(ctx context.Context, entityID string) error {
	var detached []search.Record
	if s.search != nil {
		refs, err := s.entityReferences(ctx, entityID)
		if err != nil {
			return err
		}
		detached = refs
	}
	if err := s.store.DeleteEntity(ctx, entityID); err != nil {
		return err
	}
	s.unindex(search.ResultEntity, entityID)
	for _, rec := range detached {
		rec.EntityID = ""
		s.index(rec)
	}
	return nil
}

// entityReferences pages through every art, lore and thought record that
// references entityID.
func (s *Service) entityReferences(ctx context.Context, entityID string) ([]search.Record, error) {
	const page = 200
	var records []search.Record
	for offset := 0; ; offset += page {
		items, total, err := s.store.ListArt(ctx, store.ArtFilter{EntityID: entityID, Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			records = append(records, artRecord(item))
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}
	for offset := 0; ; offset += page {
		items, total, err := s.store.ListLore(ctx, store.LoreFilter{EntityID: entityID, Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			records = append(records, loreRecord(item))
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}
	for offset := 0; ; offset += page {
		items, total, err := s.store.ListThoughts(ctx, store.ThoughtFilter{EntityID: entityID, Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			records = append(records, thoughtRecord(item))
		}
		if len(items) == 0 || offset+len(items) >= total {
			break
		}
	}
	return records, nil
}

func (s *Service) SetEntityStatus(ctx context.Context, sess Session, entityID string, input StatusInput) (map[string]any, error) {
	item, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	next, note, err := s.transition(sess, item.Status, input)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetEntityStatus(ctx, store.StatusChange{ID: entityID, From: item.Status, To: string(next), Note: note, By: sess.UserName}); err != nil {
		return nil, err
	}
	return s.reloadEntity(ctx, entityID)
}

func (s *Service) reloadEntity(ctx context.Context, entityID string) (map[string]any, error) {
	item, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	s.index(entityRecord(item))
	return entityPayload(item), nil
}

func (s *Service) ListEntityLinks(ctx context.Context, entityID string) (map[string]any, error) {
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		return nil, err
	}
	links, err := s.store.ListEntityLinks(ctx, entityID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(links))
	for _, link := range links {
		payload = append(payload, linkPayload(link, entityID))
	}
	return map[string]any{"links": payload}, nil
}

func (s *Service) CreateEntityLink(ctx context.Context, sess Session, entityID string, input LinkInput) (map[string]any, error) {
	targetID := strings.TrimSpace(input.TargetID)
	if targetID == "" {
		return nil, validationError("targetId", "targetId is required")
	}
	if targetID == entityID {
		return nil, domainError(http.StatusUnprocessableEntity, "SELF_LINK", "An entity cannot link to itself", nil)
	}
	relation := strings.ToLower(strings.TrimSpace(input.Relation))
	if relation == "" {
		relation = defaultRelation
	}
	if utf8.RuneCountInString(relation) > 64 {
		return nil, validationError("relation", "relation must be at most 64 characters")
	}

	link, err := s.store.CreateEntityLink(ctx, store.EntityLink{
		ID:        util.NewID("lnk"),
		SourceID:  entityID,
		TargetID:  targetID,
		Relation:  relation,
		Note:      strings.TrimSpace(input.Note),
		CreatedBy: sess.UserName,
	})
	if err != nil {
		if errors.Is(err, store.ErrLinkExists) {
			return nil, domainError(http.StatusConflict, "LINK_EXISTS", "This link already exists", nil)
		}
		return nil, err
	}
	return linkPayload(link, entityID), nil
}

func (s *Service) DeleteEntityLink(ctx context.Context, entityID, linkID string) error {
	return s.store.DeleteEntityLink(ctx, entityID, linkID)
}

func (s *Service) ExportEntity(ctx context.Context, entityID string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	item, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	links, err := s.store.ListEntityLinks(ctx, entityID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, store.KindEntity, entityID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.EntityDossier(item, links, comments), format)
}

// transition validates a workflow status change for sess and returns the
// target status together with the note to store.
func (s *Service) transition(sess Session, current string, input StatusInput) (workflow.Status, string, error) {
	next, ok := workflow.Parse(strings.ToLower(strings.TrimSpace(input.Status)))
	if !ok {
		return "", "", validationError("status", "status must be one of draft, review, approved, rejected")
	}
	if err := workflow.Transition(workflow.Status(current), next); err != nil {
		return "", "", err
	}
	if workflow.RequiresApproval(next) {
		if err := s.require(sess, rbac.ActionApprove); err != nil {
			return "", "", err
		}
	}
	note := ""
	if workflow.KeepsNote(next) {
		note = strings.TrimSpace(input.Note)
	}
	return next, note, nil
}

// checkEntityRef validates an optional entity reference. Blank clears it.
func (s *Service) checkEntityRef(ctx context.Context, entityID *string) (*string, error) {
	if entityID == nil || strings.TrimSpace(*entityID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*entityID)
	exists, err := s.store.Exists(ctx, store.KindEntity, id)
	if err != nil {
		return nil, fmt.Errorf("check entity: %w", err)
	}
	if !exists {
		return nil, validationError("entityId", "entity not found")
	}
	return &id, nil
}

func (s *Service) index(rec search.Record) {
	if s.search != nil {
		s.search.Index(rec)
	}
}

func (s *Service) unindex(rtyp search.ResultType, id string) {
	if s.search != nil {
		s.search.Delete(rtyp, id)
	}
}

func requireText(field, value string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", validationError(field, field+" is required")
	}
	if utf8.RuneCountInString(trimmed) > maxLength {
		return "", validationError(field, fmt.Sprintf("%s must be at most %d characters", field, maxLength))
	}
	return trimmed, nil
}

func firstMissing(missing map[string]bool) string {
	for _, field := range []string{"code", "name", "category", "title"} {
		if missing[field] {
			return field
		}
	}
	return ""
}
