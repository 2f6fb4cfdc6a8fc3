package app

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docshub/api/internal/auth"
	"docshub/api/internal/document"
	"docshub/api/internal/export"
	"docshub/api/internal/metrics"
	"docshub/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.Logger()}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
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
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		metrics.Handler().ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// Auth routes (no session required)
	if parts[1] == "auth" {
		s.handleAuth(w, r, parts[2:])
		return
	}

	// The event stream authenticates itself: browsers cannot set headers on
	// a websocket handshake.
	if parts[1] == "events" && len(parts) == 2 {
		s.handleEvents(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch parts[1] {
	case "user":
		s.handleUser(w, r, session, parts[2:])
		return
	case "projects":
		if len(parts) == 2 {
			s.handleProjectCollection(w, r, session)
			return
		}
		s.handleProject(w, r, session, parts[2], parts[3:])
		return
	case "admin":
		s.handleAdmin(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 && parts[0] == "check-username" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		available, err := s.service.CheckUsername(r.Context(), parts[1])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		message := "Username is available"
		if !available {
			message = "Username is already taken"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"available": available,
			"message":   message,
		})
		return
	}

	if len(parts) != 1 || (parts[0] != "signup" && parts[0] != "login") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if parts[0] == "signup" {
		result, err := s.service.SignUp(r.Context(), body.Username, body.Password)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, authPayload("User created successfully", result))
		return
	}

	result, err := s.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authPayload("Login successful", result))
}

func authPayload(message string, result AuthResult) map[string]any {
	return map[string]any{
		"message":  message,
		"token":    result.Token,
		"userId":   result.UserID,
		"username": result.Username,
		"role":     result.Role,
	}
}

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 1 && parts[0] == "data" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		user, list, err := s.service.UserData(r.Context(), session)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":          "User data retrieved successfully",
			"user":             user,
			"projects":         list.Projects,
			"currentProjectId": list.CurrentProjectID,
		})
		return
	}

	if len(parts) == 1 && parts[0] == "preferences" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		patch, err := decodePreferencesPatch(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		user, err := s.service.UpdatePreferences(r.Context(), session, patch)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":          "Preferences updated successfully",
			"preferences":      user.Preferences,
			"currentProjectId": user.CurrentProjectID,
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// decodePreferencesPatch tells an absent currentProjectId (leave alone) from
// an explicit null (clear the selection).
func decodePreferencesPatch(r *http.Request) (store.PreferencesPatch, error) {
	var body map[string]json.RawMessage
	if err := decodeBody(r, &body); err != nil {
		return store.PreferencesPatch{}, err
	}
	var patch store.PreferencesPatch
	if raw, ok := body["preferences"]; ok && !isJSONNull(raw) {
		var prefs store.Preferences
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return store.PreferencesPatch{}, errors.New("invalid preferences")
		}
		if strings.TrimSpace(prefs.SelectedDoc) == "" {
			prefs.SelectedDoc = document.FallbackDocumentID
		}
		patch.Preferences = &prefs
	}
	if raw, ok := body["currentProjectId"]; ok {
		patch.SetCurrentProject = true
		if !isJSONNull(raw) {
			var id string
			if err := json.Unmarshal(raw, &id); err != nil {
				return store.PreferencesPatch{}, errors.New("currentProjectId must be a string or null")
			}
			patch.CurrentProjectID = &id
		}
	}
	return patch, nil
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (s *HTTPServer) handleProjectCollection(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method == http.MethodGet {
		list, err := s.service.ListProjects(r.Context(), session)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":          "Projects retrieved successfully",
			"projects":         list.Projects,
			"currentProjectId": list.CurrentProjectID,
		})
		return
	}

	if r.Method == http.MethodPost {
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Icon        string `json:"icon"`
			Color       string `json:"color"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		project, list, err := s.service.CreateProject(r.Context(), session, store.ProjectDraft{
			Name:        body.Name,
			Description: body.Description,
			Icon:        body.Icon,
			Color:       body.Color,
		})
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":          "Project created successfully",
			"project":          project,
			"projects":         list.Projects,
			"currentProjectId": list.CurrentProjectID,
		})
		return
	}

	methodNotAllowed(w)
}

// projectBody is the sparse replace payload. Absent or null fields are left
// untouched.
type projectBody struct {
	Name            *string              `json:"name"`
	Description     *string              `json:"description"`
	Icon            *string              `json:"icon"`
	Color           *string              `json:"color"`
	Documents       *[]document.Meta     `json:"documents"`
	DocumentContent *document.ContentMap `json:"documentContent"`
	TodoLists       *document.NoteLists  `json:"todoLists"`
}

func (b projectBody) patch() store.ProjectPatch {
	return store.ProjectPatch{
		Name:            b.Name,
		Description:     b.Description,
		Icon:            b.Icon,
		Color:           b.Color,
		Documents:       b.Documents,
		DocumentContent: b.DocumentContent,
		NoteLists:       b.TodoLists,
	}
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, session Session, projectID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(ctx, session, projectID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Project retrieved successfully",
				"project": project,
			})
		case http.MethodPut:
			var body projectBody
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			project, err := s.service.ReplaceProject(ctx, session, projectID, body.patch())
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Project updated successfully",
				"project": project,
			})
		case http.MethodDelete:
			list, err := s.service.DeleteProject(ctx, session, projectID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message":          "Project deleted successfully",
				"projects":         list.Projects,
				"currentProjectId": list.CurrentProjectID,
			})
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch {
	case len(parts) == 1 && parts[0] == "select":
		if r.Method != http.MethodPut {
			methodNotAllowed(w)
			return
		}
		project, err := s.service.SelectProject(ctx, session, projectID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":          "Project selected successfully",
			"currentProjectId": project.ID,
			"project":          project,
		})

	case len(parts) == 1 && parts[0] == "search":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		response, err := s.service.Search(ctx, session, projectID, r.URL.Query().Get("q"))
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Search completed",
			"results": response.Results,
			"total":   response.Total,
			"query":   response.Query,
		})

	case len(parts) == 1 && parts[0] == "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		commits, err := s.service.History(ctx, session, projectID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "History retrieved successfully",
			"commits": commits,
		})

	case len(parts) == 2 && parts[0] == "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		snapshot, commit, err := s.service.HistorySnapshot(ctx, session, projectID, parts[1])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "Snapshot retrieved successfully",
			"commit":   commit,
			"snapshot": snapshot,
		})

	case len(parts) == 3 && parts[0] == "documents" && parts[2] == "export":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		result, err := s.service.ExportDocument(ctx, session, projectID, parts[1])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeFile(w, result)

	case len(parts) == 1 && parts[0] == "export":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		result, err := s.service.ExportArchive(ctx, session, projectID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeFile(w, result)

	case len(parts) == 2 && parts[0] == "export" && parts[1] == "publish":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		url, err := s.service.PublishArchive(ctx, session, projectID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Export published successfully",
			"url":     url,
		})

	case len(parts) == 1 && parts[0] == "assistant":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var body struct {
			Prompt string `json:"prompt"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		answer, err := s.service.Ask(ctx, session, projectID, body.Prompt)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Answer generated",
			"answer":  answer.Text,
			"source":  answer.Source,
		})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 1 && parts[0] == "all-data" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		users, err := s.service.AllData(r.Context(), session)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "All data retrieved successfully",
			"users":   users,
		})
		return
	}

	if len(parts) == 2 && parts[0] == "user" {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		if err := s.service.AdminDeleteUser(r.Context(), session, parts[1]); err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
		return
	}

	if len(parts) == 2 && parts[0] == "project" {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		project, err := s.service.AdminDeleteProject(r.Context(), session, parts[1])
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Project deleted successfully",
			"ownerId": project.OwnerID,
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Access denied. No token provided.", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
			return Session{}, false
		}
		s.logger.Error().Err(err).Msg("session lookup failed")
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
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

		elapsed := time.Since(started)
		metrics.ObserveRequest(r.Method, routeLabel(r.URL.Path), writer.status, elapsed)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the event stream take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// staticSegments are path segments kept verbatim in metric labels; anything
// else is an id.
var staticSegments = map[string]struct{}{
	"api": {}, "auth": {}, "check-username": {}, "signup": {}, "login": {},
	"user": {}, "data": {}, "preferences": {}, "projects": {}, "select": {},
	"search": {}, "history": {}, "documents": {}, "export": {}, "publish": {},
	"assistant": {}, "events": {}, "admin": {}, "all-data": {}, "project": {},
	"health": {}, "ready": {}, "metrics": {},
}

func routeLabel(path string) string {
	parts := splitPath(path)
	for i, part := range parts {
		if _, ok := staticSegments[part]; !ok {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
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
		"message": message,
		"error":   code,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Type", result.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// maxBodyBytes caps JSON request bodies.
var maxBodyBytes int64 = 50 << 20

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, document.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, store.ErrUsernameTaken) {
		return mapError(usernameTaken())
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil
	}
	var invalid *document.ValidationError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest, "VALIDATION_ERROR", invalid.Message, nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
