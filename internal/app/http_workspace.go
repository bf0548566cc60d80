package app

import (
	"net/http"
	"strings"

	"forgeboard/internal/rbac"
)

func (s *HTTPServer) handleOnboarding(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.OnboardingTree(r.Context())
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 2 && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input OnboardingInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateOnboardingCard(r.Context(), input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 3 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.GetOnboardingCard(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodPut:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input OnboardingInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateOnboardingCard(r.Context(), parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		err := s.service.DeleteOnboardingCard(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 4 && parts[3] == "move" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input MoveInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.MoveOnboardingCard(r.Context(), parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	default:
		s.notFoundOrMethod(w, len(parts) <= 3 || (len(parts) == 4 && parts[3] == "move"))
	}
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		query := r.URL.Query()
		payload, err := s.service.ListComments(r.Context(), strings.TrimSpace(query.Get("targetType")), strings.TrimSpace(query.Get("targetId")))
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 2 && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionComment) {
			return
		}
		var input CommentInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateComment(r.Context(), session, input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 3 && r.Method == http.MethodPut:
		if !s.allow(w, session, rbac.ActionComment) {
			return
		}
		var body struct {
			Body string `json:"body"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateComment(r.Context(), session, parts[2], body.Body)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionComment) {
			return
		}
		err := s.service.DeleteComment(r.Context(), session, parts[2])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	default:
		s.notFoundOrMethod(w, len(parts) <= 3)
	}
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.allow(w, session, rbac.ActionAdmin) {
		return
	}
	switch {
	case len(parts) == 3 && parts[2] == "users" && r.Method == http.MethodGet:
		limit, offset, ok := parsePage(w, r, 50)
		if !ok {
			return
		}
		payload, err := s.service.ListUsers(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), limit, offset)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 5 && parts[2] == "users" && parts[4] == "role" && r.Method == http.MethodPut:
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateUserRole(r.Context(), session, parts[3], body.Role)
		s.writeResult(w, r, http.StatusOK, payload, err)
	default:
		s.notFoundOrMethod(w, len(parts) >= 3 && parts[2] == "users" && (len(parts) == 3 || (len(parts) == 5 && parts[4] == "role")))
	}
}
