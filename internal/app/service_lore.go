package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"forgeboard/internal/export"
	"forgeboard/internal/lorearchive"
	"forgeboard/internal/lorediff"
	"forgeboard/internal/search"
	"forgeboard/internal/store"
	"forgeboard/internal/tags"
	"forgeboard/internal/util"
	"forgeboard/internal/workflow"
)

const maxVersionNote = 500

func (s *Service) ListLore(ctx context.Context, filter store.LoreFilter) (map[string]any, error) {
	items, total, err := s.store.ListLore(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, loreSummaryPayload(item))
	}
	return map[string]any{"lore": payload, "total": total}, nil
}

func (s *Service) CreateLore(ctx context.Context, sess Session, input LoreInput) (map[string]any, error) {
	if input.Title == nil {
		return nil, validationError("title", "title is required")
	}
	item := store.LoreEntry{
		ID:        util.NewID("lor"),
		Status:    string(workflow.StatusDraft),
		CreatedBy: sess.UserName,
	}
	if _, err := s.applyLoreInput(ctx, &item, input); err != nil {
		return nil, err
	}
	note, err := versionNote(input.Note, "Initial version")
	if err != nil {
		return nil, err
	}

	created, version, err := s.store.CreateLore(ctx, item, store.LoreVersion{
		ID:      util.NewID("lrv"),
		Title:   item.Title,
		Content: item.Content,
		Author:  sess.UserName,
		Note:    note,
	})
	if err != nil {
		return nil, err
	}
	s.archiveVersion(version)
	s.index(loreRecord(created))
	return lorePayload(created), nil
}

func (s *Service) GetLore(ctx context.Context, loreID string) (map[string]any, error) {
	item, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	commentCount, err := s.store.CountComments(ctx, store.KindLore, loreID)
	if err != nil {
		return nil, err
	}
	payload := lorePayload(item)
	payload["commentCount"] = commentCount
	return payload, nil
}

// UpdateLore saves the entry. A new version is written only when the title
// or content changed.
func (s *Service) UpdateLore(ctx context.Context, sess Session, loreID string, input LoreInput) (map[string]any, error) {
	item, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	textChanged, err := s.applyLoreInput(ctx, &item, input)
	if err != nil {
		return nil, err
	}
	item.UpdatedBy = sess.UserName

	var version *store.LoreVersion
	if textChanged {
		note, err := versionNote(input.Note, "")
		if err != nil {
			return nil, err
		}
		version = &store.LoreVersion{
			ID:      util.NewID("lrv"),
			Title:   item.Title,
			Content: item.Content,
			Author:  sess.UserName,
			Note:    note,
		}
	}

	updated, err := s.store.UpdateLore(ctx, item, version)
	if err != nil {
		return nil, err
	}
	if version != nil {
		s.archiveVersion(*version)
	}
	s.index(loreRecord(updated))
	return lorePayload(updated), nil
}

// applyLoreInput copies provided fields and reports whether title or
// content differ from the stored values.
func (s *Service) applyLoreInput(ctx context.Context, item *store.LoreEntry, input LoreInput) (bool, error) {
	changed := false
	if input.Title != nil {
		title, err := requireText("title", *input.Title, maxNameLength)
		if err != nil {
			return false, err
		}
		changed = changed || title != item.Title
		item.Title = title
	}
	if input.Content != nil {
		content := strings.ReplaceAll(*input.Content, "\r\n", "\n")
		changed = changed || content != item.Content
		item.Content = content
	}
	if input.Summary != nil {
		item.Summary = strings.TrimSpace(*input.Summary)
	}
	if input.EntityID.Set {
		entityID, err := s.checkEntityRef(ctx, input.EntityID.Value)
		if err != nil {
			return false, err
		}
		item.EntityID = entityID
	}
	if input.Tags != nil {
		normalized, err := tags.Normalize(*input.Tags)
		if err != nil {
			return false, err
		}
		item.Tags = normalized
	}
	return changed, nil
}

func versionNote(raw, fallback string) (string, error) {
	note := strings.TrimSpace(raw)
	if len([]rune(note)) > maxVersionNote {
		return "", validationError("note", fmt.Sprintf("note must be at most %d characters", maxVersionNote))
	}
	if note == "" {
		note = fallback
	}
	return note, nil
}

func (s *Service) SetLoreStatus(ctx context.Context, sess Session, loreID string, input StatusInput) (map[string]any, error) {
	item, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	next, note, err := s.transition(sess, item.Status, input)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetLoreStatus(ctx, store.StatusChange{ID: loreID, From: item.Status, To: string(next), Note: note, By: sess.UserName}); err != nil {
		return nil, err
	}
	updated, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	s.index(loreRecord(updated))
	return lorePayload(updated), nil
}

func (s *Service) DeleteLore(ctx context.Context, loreID string) error {
	if err := s.store.DeleteLore(ctx, loreID); err != nil {
		return err
	}
	s.unindex(search.ResultLore, loreID)
	if s.archive != nil {
		if err := s.archive.Remove(loreID); err != nil {
			s.logArchiveError(loreID, err)
		}
	}
	return nil
}

func (s *Service) ListLoreVersions(ctx context.Context, loreID string) (map[string]any, error) {
	item, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListLoreVersions(ctx, loreID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		payload = append(payload, versionPayload(version, false))
	}
	return map[string]any{"loreId": item.ID, "currentVersion": item.CurrentVersion, "versions": payload}, nil
}

func (s *Service) GetLoreVersion(ctx context.Context, loreID string, number int) (map[string]any, error) {
	version, err := s.store.GetLoreVersion(ctx, loreID, number)
	if err != nil {
		return nil, err
	}
	return versionPayload(version, true), nil
}

// DiffLoreVersions compares version against with version number. Without against the previous
// version is used; version 1 is compared with empty text.
func (s *Service) DiffLoreVersions(ctx context.Context, loreID string, number int, against *int) (map[string]any, error) {
	to, err := s.store.GetLoreVersion(ctx, loreID, number)
	if err != nil {
		return nil, err
	}

	var from store.LoreVersion
	fromNumber := number - 1
	if against != nil {
		fromNumber = *against
	}
	if fromNumber > 0 {
		from, err = s.store.GetLoreVersion(ctx, loreID, fromNumber)
		if err != nil {
			return nil, err
		}
	} else if against != nil {
		return nil, validationError("against", "against must be a positive version number")
	}

	result := lorediff.Diff(from.Content, to.Content, s.cfg.DiffCellBudget)
	return map[string]any{
		"loreId":      loreID,
		"from":        fromNumber,
		"to":          number,
		"fromTitle":   from.Title,
		"toTitle":     to.Title,
		"lines":       result.Lines,
		"added":       result.Added,
		"removed":     result.Removed,
		"approximate": result.Approximate,
		"endNewline":  result.EndNewline,
	}, nil
}

// RestoreLoreVersion makes version number the newest version again. When the
// entry already matches it nothing is written.
func (s *Service) RestoreLoreVersion(ctx context.Context, sess Session, loreID string, number int) (map[string]any, error) {
	version, err := s.store.GetLoreVersion(ctx, loreID, number)
	if err != nil {
		return nil, err
	}
	item, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	if item.Title == version.Title && item.Content == version.Content {
		payload := lorePayload(item)
		payload["restored"] = false
		return payload, nil
	}

	item.Title = version.Title
	item.Content = version.Content
	item.UpdatedBy = sess.UserName
	restored := &store.LoreVersion{
		ID:      util.NewID("lrv"),
		Title:   version.Title,
		Content: version.Content,
		Author:  sess.UserName,
		Note:    fmt.Sprintf("Restored from version %d", number),
	}
	updated, err := s.store.UpdateLore(ctx, item, restored)
	if err != nil {
		return nil, err
	}
	s.archiveVersion(*restored)
	s.index(loreRecord(updated))
	payload := lorePayload(updated)
	payload["restored"] = true
	return payload, nil
}

// LoreArchive lists the git mirror of a lore entry's versions.
func (s *Service) LoreArchive(ctx context.Context, loreID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetLore(ctx, loreID); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return map[string]any{"enabled": false, "commits": []map[string]any{}}, nil
	}
	commits, err := s.archive.History(loreID, limit)
	if err != nil && !errors.Is(err, lorearchive.ErrNoArchive) {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		payload = append(payload, commitPayload(commit))
	}
	return map[string]any{"enabled": true, "commits": payload}, nil
}

func (s *Service) ExportLore(ctx context.Context, loreID string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	item, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, store.KindLore, loreID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.LoreDossier(item, comments), format)
}

func (s *Service) archiveVersion(version store.LoreVersion) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.CommitVersion(version); err != nil {
		s.logArchiveError(version.LoreID, err)
	}
}
