package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"forgeboard/internal/rbac"
	"forgeboard/internal/store"
	"forgeboard/internal/util"
)

const maxCommentLength = 5000

var commentTargets = map[string]struct{}{
	store.KindEntity:  {},
	store.KindArt:     {},
	store.KindLore:    {},
	store.KindThought: {},
}

func (s *Service) ListComments(ctx context.Context, targetType, targetID string) (map[string]any, error) {
	if err := s.checkCommentTarget(ctx, targetType, targetID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, targetType, targetID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		payload = append(payload, commentPayload(comment))
	}
	return map[string]any{"comments": payload}, nil
}

func (s *Service) CreateComment(ctx context.Context, sess Session, input CommentInput) (map[string]any, error) {
	targetType := strings.ToLower(strings.TrimSpace(input.TargetType))
	targetID := strings.TrimSpace(input.TargetID)
	if err := s.checkCommentTarget(ctx, targetType, targetID); err != nil {
		return nil, err
	}
	body, err := commentBody(input.Body)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreateComment(ctx, store.Comment{
		ID:         util.NewID("cmt"),
		TargetType: targetType,
		TargetID:   targetID,
		Author:     sess.UserName,
		Body:       body,
	})
	if err != nil {
		return nil, err
	}
	return commentPayload(created), nil
}

func (s *Service) UpdateComment(ctx context.Context, sess Session, commentID, rawBody string) (map[string]any, error) {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !s.canModifyComment(sess, comment) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the author or an admin can edit this comment", nil)
	}
	body, err := commentBody(rawBody)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateComment(ctx, commentID, body)
	if err != nil {
		return nil, err
	}
	return commentPayload(updated), nil
}

func (s *Service) DeleteComment(ctx context.Context, sess Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !s.canModifyComment(sess, comment) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author or an admin can delete this comment", nil)
	}
	return s.store.DeleteComment(ctx, commentID)
}

func (s *Service) canModifyComment(sess Session, comment store.Comment) bool {
	return comment.Author == sess.UserName || s.Can(sess.Role, rbac.ActionAdmin)
}

func (s *Service) checkCommentTarget(ctx context.Context, targetType, targetID string) error {
	if _, ok := commentTargets[targetType]; !ok {
		return validationError("targetType", "targetType must be one of entity, art, lore, thought")
	}
	if targetID == "" {
		return validationError("targetId", "targetId is required")
	}
	exists, err := s.store.Exists(ctx, targetType, targetID)
	if err != nil {
		return fmt.Errorf("check comment target: %w", err)
	}
	if !exists {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Comment target not found", nil)
	}
	return nil
}

func commentBody(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	if body == "" {
		return "", validationError("body", "body is required")
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return "", validationError("body", fmt.Sprintf("body must be at most %d characters", maxCommentLength))
	}
	return body, nil
}
