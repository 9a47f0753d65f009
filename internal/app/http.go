package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":      status == "ready",
			"status":  status,
			"checks":  checks,
			"uploads": s.service.UploadsEnabled(),
		})
		return
	}

	// Account routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	// Everything below requires an authenticated actor.
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token", nil)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/me" {
		payload, err := s.service.Me(r.Context(), session)
		s.respond(w, http.StatusOK, payload, err)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "notes":
		s.handleNotes(w, r, session, parts)
	case "notebooks":
		s.handleNotebooks(w, r, session, parts)
	case "tags":
		s.handleTags(w, r, session, parts)
	case "comments":
		s.handleComments(w, r, session, parts)
	case "groups":
		s.handleGroups(w, r, session, parts)
	case "attachments":
		s.handleAttachments(w, r, session, parts)
	case "users":
		s.handleUsers(w, r, session, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// stringOrList accepts either a bare JSON string or an array of strings.
// Older clients send phone as a single string.
type stringOrList []string

func (l *stringOrList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = stringOrList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = stringOrList(many)
	return nil
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string       `json:"user_name"`
		FirstName   string       `json:"first_name"`
		LastName    string       `json:"last_name"`
		Email       string       `json:"email"`
		Password    string       `json:"password"`
		Phone       stringOrList `json:"phone"`
		Institution string       `json:"institution"`
		Roles       []string     `json:"roles"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	payload, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Username:    body.Username,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Email:       body.Email,
		Password:    body.Password,
		Phone:       []string(body.Phone),
		Institution: body.Institution,
		Roles:       body.Roles,
	})
	s.respond(w, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleNotes(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			query := NoteListQuery{
				NotebookID: queryID(r, "notebook_id"),
				TagID:      queryID(r, "tag_id"),
				UserID:     queryID(r, "user_id"),
			}
			payload, err := s.service.ListNotes(r.Context(), session, query)
			s.respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var input CreateNoteInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateNote(r.Context(), session, input)
			s.respond(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	noteID, err := parseID(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid note id", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "tags" && r.Method == http.MethodPost {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.TagNote(r.Context(), session, noteID, body.Name)
		s.respond(w, http.StatusOK, payload, err)
		return
	}

	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetNote(r.Context(), session, noteID)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodPut:
		var input UpdateNoteInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateNote(r.Context(), session, noteID, input)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodDelete:
		payload, err := s.service.DeleteNote(r.Context(), session, noteID)
		s.respond(w, http.StatusOK, payload, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleNotebooks(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListNotebooks(r.Context(), session)
			s.respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var input CreateNotebookInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateNotebook(r.Context(), session, input)
			s.respond(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	notebookID, err := parseID(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid notebook id", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "notes" && r.Method == http.MethodPost {
		var body struct {
			NoteID int64 `json:"note_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddNotebookNote(r.Context(), session, notebookID, body.NoteID)
		s.respond(w, http.StatusOK, payload, err)
		return
	}

	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetNotebook(r.Context(), session, notebookID)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodPut:
		var input UpdateNotebookInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateNotebook(r.Context(), session, notebookID, input)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodDelete:
		payload, err := s.service.DeleteNotebook(r.Context(), session, notebookID)
		s.respond(w, http.StatusOK, payload, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListTags(r.Context(), session)
			s.respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTag(r.Context(), session, body.Name)
			s.respond(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	tagID, err := parseID(parts[2])
	if err != nil || len(parts) != 3 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid tag id", nil)
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	payload, err := s.service.DeleteTag(r.Context(), session, tagID)
	s.respond(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListComments(r.Context(), session, queryID(r, "note_id"))
			s.respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var input CreateCommentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateComment(r.Context(), session, input)
			s.respond(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	commentID, err := parseID(parts[2])
	if err != nil || len(parts) != 3 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid comment id", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetComment(r.Context(), session, commentID)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodPut:
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateComment(r.Context(), session, commentID, body.Text)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodDelete:
		payload, err := s.service.DeleteComment(r.Context(), session, commentID)
		s.respond(w, http.StatusOK, payload, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleGroups(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListGroups(r.Context(), session)
			s.respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var input CreateGroupInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateGroup(r.Context(), session, input)
			s.respond(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	groupID, err := parseID(parts[2])
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid group id", nil)
		return
	}

	if len(parts) == 4 && parts[3] == "members" && r.Method == http.MethodPost {
		var body struct {
			UserID int64 `json:"user_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.AddGroupMember(r.Context(), session, groupID, body.UserID)
		s.respond(w, http.StatusOK, payload, err)
		return
	}

	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetGroup(r.Context(), session, groupID)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodPut:
		var input UpdateGroupInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateGroup(r.Context(), session, groupID, input)
		s.respond(w, http.StatusOK, payload, err)
	case http.MethodDelete:
		payload, err := s.service.DeleteGroup(r.Context(), session, groupID)
		s.respond(w, http.StatusOK, payload, err)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAttachments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListAttachments(r.Context(), session, r.URL.Query().Get("parent_type"), queryID(r, "parent_id"))
			s.respond(w, http.StatusOK, payload, err)
		case http.MethodPost:
			var input CreateAttachmentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateAttachment(r.Context(), session, input)
			s.respond(w, http.StatusCreated, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 3 && parts[2] == "upload" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleAttachmentUpload(w, r, session)
		return
	}

	attachmentID, err := parseID(parts[2])
	if err != nil || len(parts) != 3 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid attachment id", nil)
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	payload, err := s.service.DeleteAttachment(r.Context(), session, attachmentID)
	s.respond(w, http.StatusOK, payload, err)
}

const maxUploadBytes = 32 << 20

func (s *HTTPServer) handleAttachmentUpload(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form required", nil)
		return
	}
	parentID, _ := strconv.ParseInt(r.FormValue("parent_id"), 10, 64)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file field is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	payload, err := s.service.UploadAttachment(r.Context(), session, UploadAttachmentInput{
		ParentType:  r.FormValue("parent_type"),
		ParentID:    parentID,
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	s.respond(w, http.StatusCreated, payload, err)
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if len(parts) == 2 {
		payload, err := s.service.ListUsers(r.Context(), session)
		s.respond(w, http.StatusOK, payload, err)
		return
	}
	userID, err := parseID(parts[2])
	if err != nil || len(parts) != 3 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id", nil)
		return
	}
	payload, err := s.service.GetUser(r.Context(), session, userID)
	s.respond(w, http.StatusOK, payload, err)
}

// respond writes payload with okStatus, or maps err when set.
func (s *HTTPServer) respond(w http.ResponseWriter, okStatus int, payload any, err error) {
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, okStatus, payload)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":         session.Token,
		"refresh_token": session.RefreshToken,
		"user_id":       session.UserID,
		"user_name":     session.Username,
		"roles":         session.Roles.Names(),
		"expires_at":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeFailure(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func queryID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if id < 0 {
		return 0
	}
	return id
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *authpw.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Message, nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusBadRequest, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrUsernameTaken):
		return http.StatusBadRequest, "USERNAME_EXISTS", "Username already taken", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
