package app

import (
	"fmt"
	"time"

	"forgeboard/internal/lorearchive"
	"forgeboard/internal/search"
	"forgeboard/internal/store"
)

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       nilIfEmpty(user.Email),
		"role":        user.Role,
		"createdAt":   user.CreatedAt,
	}
}

func entityPayload(item store.Entity) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"code":        item.Code,
		"name":        item.Name,
		"category":    item.Category,
		"summary":     item.Summary,
		"description": item.Description,
		"attributes":  item.Attributes,
		"status":      item.Status,
		"statusNote":  item.StatusNote,
		"tags":        nonNilStrings(item.Tags),
		"createdBy":   item.CreatedBy,
		"updatedBy":   item.UpdatedBy,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}

func linkPayload(link store.EntityLink, perspective string) map[string]any {
	direction := "outgoing"
	if link.TargetID == perspective && link.SourceID != perspective {
		direction = "incoming"
	}
	return map[string]any{
		"id":         link.ID,
		"sourceId":   link.SourceID,
		"sourceName": link.SourceName,
		"targetId":   link.TargetID,
		"targetName": link.TargetName,
		"relation":   link.Relation,
		"note":       link.Note,
		"direction":  direction,
		"createdBy":  link.CreatedBy,
		"createdAt":  link.CreatedAt,
	}
}

func artPayload(item store.ConceptArt, imageURL string) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"title":       item.Title,
		"description": item.Description,
		"entityId":    item.EntityID,
		"hasImage":    item.ImageKey != "",
		"imageUrl":    nilIfEmpty(imageURL),
		"contentType": nilIfEmpty(item.ContentType),
		"sizeBytes":   item.SizeBytes,
		"status":      item.Status,
		"statusNote":  item.StatusNote,
		"tags":        nonNilStrings(item.Tags),
		"uploadedBy":  item.UploadedBy,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}

func lorePayload(item store.LoreEntry) map[string]any {
	return map[string]any{
		"id":             item.ID,
		"title":          item.Title,
		"entityId":       item.EntityID,
		"content":        item.Content,
		"summary":        item.Summary,
		"status":         item.Status,
		"statusNote":     item.StatusNote,
		"currentVersion": item.CurrentVersion,
		"tags":           nonNilStrings(item.Tags),
		"createdBy":      item.CreatedBy,
		"updatedBy":      item.UpdatedBy,
		"createdAt":      item.CreatedAt,
		"updatedAt":      item.UpdatedAt,
	}
}

// loreSummaryPayload omits content for list views.
func loreSummaryPayload(item store.LoreEntry) map[string]any {
	payload := lorePayload(item)
	delete(payload, "content")
	return payload
}

func versionPayload(version store.LoreVersion, withContent bool) map[string]any {
	payload := map[string]any{
		"id":        version.ID,
		"loreId":    version.LoreID,
		"version":   version.Version,
		"title":     version.Title,
		"author":    version.Author,
		"note":      version.Note,
		"createdAt": version.CreatedAt,
	}
	if withContent {
		payload["content"] = version.Content
	}
	return payload
}

func commitPayload(commit lorearchive.Commit) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"version":   commit.Version,
		"message":   commit.Message,
		"author":    commit.Author,
		"createdAt": commit.CreatedAt,
	}
}

func thoughtPayload(item store.Thought) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"title":     item.Title,
		"body":      item.Body,
		"status":    item.Status,
		"priority":  item.Priority,
		"entityId":  item.EntityID,
		"assignee":  item.Assignee,
		"dueAt":     item.DueAt,
		"tags":      nonNilStrings(item.Tags),
		"createdBy": item.CreatedBy,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}

func onboardingPayload(item store.OnboardingCard) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"parentId":  item.ParentID,
		"title":     item.Title,
		"body":      item.Body,
		"category":  item.Category,
		"linkUrl":   nilIfEmpty(item.LinkURL),
		"sortOrder": item.SortOrder,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}

func onboardingNodePayload(node store.OnboardingNode) map[string]any {
	payload := onboardingPayload(node.OnboardingCard)
	children := make([]map[string]any, 0, len(node.Children))
	for _, child := range node.Children {
		children = append(children, onboardingNodePayload(child))
	}
	payload["children"] = children
	payload["depth"] = node.Depth
	return payload
}

func commentPayload(item store.Comment) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"targetType": item.TargetType,
		"targetId":   item.TargetID,
		"author":     item.Author,
		"body":       item.Body,
		"createdAt":  item.CreatedAt,
		"editedAt":   item.EditedAt,
	}
}

func recentPayload(item store.RecentItem) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"title":     item.Title,
		"status":    item.Status,
		"updatedAt": item.UpdatedAt,
		"relative":  relative(item.UpdatedAt),
	}
}

func entityRecord(item store.Entity) search.Record {
	return search.Record{
		Type:      search.ResultEntity,
		ID:        item.ID,
		Title:     item.Name,
		Summary:   item.Summary,
		Body:      item.Description,
		Status:    item.Status,
		Tags:      item.Tags,
		UpdatedAt: search.Timestamp(item.UpdatedAt),
	}
}

func artRecord(item store.ConceptArt) search.Record {
	return search.Record{
		Type:      search.ResultArt,
		ID:        item.ID,
		Title:     item.Title,
		Body:      item.Description,
		Status:    item.Status,
		EntityID:  derefString(item.EntityID),
		Tags:      item.Tags,
		UpdatedAt: search.Timestamp(item.UpdatedAt),
	}
}

func loreRecord(item store.LoreEntry) search.Record {
	return search.Record{
		Type:      search.ResultLore,
		ID:        item.ID,
		Title:     item.Title,
		Summary:   item.Summary,
		Body:      item.Content,
		Status:    item.Status,
		EntityID:  derefString(item.EntityID),
		Tags:      item.Tags,
		UpdatedAt: search.Timestamp(item.UpdatedAt),
	}
}

func thoughtRecord(item store.Thought) search.Record {
	return search.Record{
		Type:      search.ResultThought,
		ID:        item.ID,
		Title:     item.Title,
		Body:      item.Body,
		Status:    item.Status,
		EntityID:  derefString(item.EntityID),
		Tags:      item.Tags,
		UpdatedAt: search.Timestamp(item.UpdatedAt),
	}
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func relative(value time.Time) string {
	minutes := int(time.Since(value).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	days := hours / 24
	return fmt.Sprintf("%dd ago", days)
}
