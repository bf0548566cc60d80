package app

import (
	"bytes"
	"encoding/json"

	"forgeboard/internal/tags"
)

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

// TagsInput accepts either a delimited string or a list of strings.
type TagsInput []string

func (t *TagsInput) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*t = TagsInput{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*t = TagsInput(tags.Split(raw))
		return nil
	}
	var list []string
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*t = TagsInput(list)
	return nil
}

type EntityInput struct {
	Code        *string            `json:"code"`
	Name        *string            `json:"name"`
	Category    *string            `json:"category"`
	Summary     *string            `json:"summary"`
	Description *string            `json:"description"`
	Attributes  *map[string]string `json:"attributes"`
	Tags        *TagsInput         `json:"tags"`
}

type LinkInput struct {
	TargetID string `json:"targetId"`
	Relation string `json:"relation"`
	Note     string `json:"note"`
}

type StatusInput struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type ArtInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	EntityID    OptionalString `json:"entityId"`
	Tags        *TagsInput     `json:"tags"`
}

type LoreInput struct {
	Title    *string        `json:"title"`
	Content  *string        `json:"content"`
	Summary  *string        `json:"summary"`
	EntityID OptionalString `json:"entityId"`
	Tags     *TagsInput     `json:"tags"`
	Note     string         `json:"note"`
}

type ThoughtInput struct {
	Title    *string        `json:"title"`
	Body     *string        `json:"body"`
	Priority *string        `json:"priority"`
	Status   *string        `json:"status"`
	EntityID OptionalString `json:"entityId"`
	Assignee *string        `json:"assignee"`
	DueAt    OptionalString `json:"dueAt"`
	Tags     *TagsInput     `json:"tags"`
}

type OnboardingInput struct {
	ParentID  *string `json:"parentId"`
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	Category  *string `json:"category"`
	LinkURL   *string `json:"linkUrl"`
	SortOrder *int    `json:"sortOrder"`
}

type MoveInput struct {
	ParentID  *string `json:"parentId"`
	SortOrder int     `json:"sortOrder"`
}

type CommentInput struct {
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetId"`
	Body       string `json:"body"`
}
