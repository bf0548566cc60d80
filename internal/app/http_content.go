package app

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"forgeboard/internal/export"
	"forgeboard/internal/media"
	"forgeboard/internal/rbac"
	"forgeboard/internal/store"
)

func (s *HTTPServer) handleEntities(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	query := r.URL.Query()
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		limit, offset, ok := parsePage(w, r, 50)
		if !ok {
			return
		}
		payload, err := s.service.ListEntities(r.Context(), store.EntityFilter{
			Category: strings.TrimSpace(query.Get("category")),
			Status:   strings.TrimSpace(query.Get("status")),
			Tag:      strings.TrimSpace(query.Get("tag")),
			Query:    strings.TrimSpace(query.Get("q")),
			Limit:    limit,
			Offset:   offset,
		})
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 2 && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input EntityInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateEntity(r.Context(), session, input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 3 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.GetEntity(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodPut:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input EntityInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateEntity(r.Context(), session, parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		err := s.service.DeleteEntity(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 4 && parts[3] == "status" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input StatusInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetEntityStatus(r.Context(), session, parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 4 && parts[3] == "links" && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.ListEntityLinks(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 4 && parts[3] == "links" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input LinkInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateEntityLink(r.Context(), session, parts[2], input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 5 && parts[3] == "links" && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		err := s.service.DeleteEntityLink(r.Context(), parts[2], parts[4])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		format, ok := exportFormat(w, r)
		if !ok {
			return
		}
		result, err := s.service.ExportEntity(r.Context(), parts[2], format)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		writeFile(w, result)
	default:
		s.notFoundOrMethod(w, len(parts) <= 3 || (len(parts) == 4 && oneOf(parts[3], "status", "links", "export")) || (len(parts) == 5 && parts[3] == "links"))
	}
}

func (s *HTTPServer) handleArt(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	query := r.URL.Query()
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		limit, offset, ok := parsePage(w, r, 50)
		if !ok {
			return
		}
		payload, err := s.service.ListArt(r.Context(), store.ArtFilter{
			EntityID: strings.TrimSpace(query.Get("entityId")),
			Status:   strings.TrimSpace(query.Get("status")),
			Tag:      strings.TrimSpace(query.Get("tag")),
			Limit:    limit,
			Offset:   offset,
		})
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 2 && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input ArtInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateArt(r.Context(), session, input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 3 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.GetArt(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodPut:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input ArtInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateArt(r.Context(), parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		err := s.service.DeleteArt(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 4 && parts[3] == "image" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		s.handleArtUpload(w, r, parts[2])
	case len(parts) == 4 && parts[3] == "status" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input StatusInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetArtStatus(r.Context(), session, parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	default:
		s.notFoundOrMethod(w, len(parts) <= 3 || (len(parts) == 4 && oneOf(parts[3], "image", "status")))
	}
}

// handleArtUpload reads the multipart field "image" and hands it to object
// storage. The content type is sniffed from the first bytes.
func (s *HTTPServer) handleArtUpload(w http.ResponseWriter, r *http.Request, artID string) {
	limit := s.service.cfg.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+1024*1024)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image is required", map[string]any{"field": "image"})
			return
		}
		if err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds the size limit", nil)
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
			return
		}
		if part.FormName() != "image" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, limit+1))
		_ = part.Close()
		if err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds the size limit", nil)
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read upload", nil)
			return
		}
		if int64(len(data)) > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds the size limit", nil)
			return
		}
		if len(data) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image is empty", map[string]any{"field": "image"})
			return
		}
		header := data
		if len(header) > 512 {
			header = header[:512]
		}
		contentType, ok := media.SniffImageType(header)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image must be PNG, JPEG, GIF or WebP", map[string]any{"field": "image"})
			return
		}

		payload, err := s.service.UploadArtImage(r.Context(), artID, bytes.NewReader(data), int64(len(data)), contentType)
		s.writeResult(w, r, http.StatusOK, payload, err)
		return
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *HTTPServer) handleLore(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	query := r.URL.Query()
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		limit, offset, ok := parsePage(w, r, 50)
		if !ok {
			return
		}
		payload, err := s.service.ListLore(r.Context(), store.LoreFilter{
			EntityID: strings.TrimSpace(query.Get("entityId")),
			Status:   strings.TrimSpace(query.Get("status")),
			Tag:      strings.TrimSpace(query.Get("tag")),
			Query:    strings.TrimSpace(query.Get("q")),
			Limit:    limit,
			Offset:   offset,
		})
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 2 && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input LoreInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateLore(r.Context(), session, input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 3 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.GetLore(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodPut:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input LoreInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateLore(r.Context(), session, parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		err := s.service.DeleteLore(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 4 && parts[3] == "status" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input StatusInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetLoreStatus(r.Context(), session, parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 4 && parts[3] == "versions" && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.ListLoreVersions(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 4 && parts[3] == "archive" && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		limit, _, ok := parsePage(w, r, 50)
		if !ok {
			return
		}
		payload, err := s.service.LoreArchive(r.Context(), parts[2], limit)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 4 && parts[3] == "export" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		format, ok := exportFormat(w, r)
		if !ok {
			return
		}
		result, err := s.service.ExportLore(r.Context(), parts[2], format)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		writeFile(w, result)
	case len(parts) >= 5 && parts[3] == "versions":
		s.handleLoreVersion(w, r, session, parts)
	default:
		s.notFoundOrMethod(w, len(parts) <= 3 || (len(parts) == 4 && oneOf(parts[3], "status", "versions", "archive", "export")))
	}
}

func (s *HTTPServer) handleLoreVersion(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	number, err := strconv.Atoi(parts[4])
	if err != nil || number <= 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
		return
	}
	switch {
	case len(parts) == 5 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.GetLoreVersion(r.Context(), parts[2], number)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 6 && parts[5] == "diff" && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		var against *int
		if raw := strings.TrimSpace(r.URL.Query().Get("against")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "against must be an integer", map[string]any{"field": "against"})
				return
			}
			against = &parsed
		}
		payload, err := s.service.DiffLoreVersions(r.Context(), parts[2], number, against)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 6 && parts[5] == "restore" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		payload, err := s.service.RestoreLoreVersion(r.Context(), session, parts[2], number)
		s.writeResult(w, r, http.StatusOK, payload, err)
	default:
		s.notFoundOrMethod(w, len(parts) == 5 || (len(parts) == 6 && (parts[5] == "diff" || parts[5] == "restore")))
	}
}

func (s *HTTPServer) handleThoughts(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	query := r.URL.Query()
	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		limit, offset, ok := parsePage(w, r, 50)
		if !ok {
			return
		}
		payload, err := s.service.ListThoughts(r.Context(), store.ThoughtFilter{
			Status:   strings.TrimSpace(query.Get("status")),
			Priority: strings.TrimSpace(query.Get("priority")),
			Assignee: strings.TrimSpace(query.Get("assignee")),
			Tag:      strings.TrimSpace(query.Get("tag")),
			EntityID: strings.TrimSpace(query.Get("entityId")),
			Limit:    limit,
			Offset:   offset,
		})
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 2 && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input ThoughtInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateThought(r.Context(), session, input)
		s.writeResult(w, r, http.StatusCreated, payload, err)
	case len(parts) == 3 && r.Method == http.MethodGet:
		if !s.allow(w, session, rbac.ActionRead) {
			return
		}
		payload, err := s.service.GetThought(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodPut:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var input ThoughtInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateThought(r.Context(), parts[2], input)
		s.writeResult(w, r, http.StatusOK, payload, err)
	case len(parts) == 3 && r.Method == http.MethodDelete:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		err := s.service.DeleteThought(r.Context(), parts[2])
		s.writeResult(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 4 && parts[3] == "status" && r.Method == http.MethodPost:
		if !s.allow(w, session, rbac.ActionWrite) {
			return
		}
		var body struct {
			Status string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.SetThoughtStatus(r.Context(), parts[2], body.Status)
		s.writeResult(w, r, http.StatusOK, payload, err)
	default:
		s.notFoundOrMethod(w, len(parts) <= 3 || (len(parts) == 4 && parts[3] == "status"))
	}
}

// exportFormat reads the format from the query string, falling back to a
// JSON body. An empty format means PDF.
func exportFormat(w http.ResponseWriter, r *http.Request) (export.Format, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("format"))
	if raw == "" && r.ContentLength != 0 {
		var body struct {
			Format string `json:"format"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return "", false
		}
		raw = strings.TrimSpace(body.Format)
	}
	format, ok := export.ParseFormat(raw)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf or html", map[string]any{"field": "format"})
		return "", false
	}
	return format, true
}

// notFoundOrMethod writes 405 when the path shape is known but the method is
// not, and 404 otherwise.
func (s *HTTPServer) notFoundOrMethod(w http.ResponseWriter, knownPath bool) {
	if knownPath {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func oneOf(value string, options ...string) bool {
	for _, option := range options {
		if value == option {
			return true
		}
	}
	return false
}
