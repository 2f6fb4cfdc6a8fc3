// Package client is the typed Go binding of the docshub HTTP API, plus the
// Workspace that keeps an open project synchronized with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"docshub/api/internal/document"
	"docshub/api/internal/search"
	"docshub/api/internal/store"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("docshub: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("docshub: %s: %s", e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Auth is the signup and login answer.
type Auth struct {
	Message  string `json:"message"`
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/check-username/"+url.PathEscape(username), nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

// SignUp registers and keeps the returned token for later calls.
func (c *Client) SignUp(ctx context.Context, username, password string) (Auth, error) {
	var out Auth
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", credentials{username, password}, &out); err != nil {
		return Auth{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (Auth, error) {
	var out Auth
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", credentials{username, password}, &out); err != nil {
		return Auth{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) UserData(ctx context.Context) (store.User, store.ProjectList, error) {
	var out struct {
		User             store.User      `json:"user"`
		Projects         []store.Project `json:"projects"`
		CurrentProjectID *string         `json:"currentProjectId"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/user/data", nil, &out); err != nil {
		return store.User{}, store.ProjectList{}, err
	}
	return out.User, store.ProjectList{Projects: out.Projects, CurrentProjectID: out.CurrentProjectID}, nil
}

// PreferencesUpdate is a sparse preferences update. With SetCurrentProject
// and a nil CurrentProjectID the selection is cleared.
type PreferencesUpdate struct {
	Preferences       *store.Preferences
	SetCurrentProject bool
	CurrentProjectID  *string
}

func (u PreferencesUpdate) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	if u.Preferences != nil {
		body["preferences"] = u.Preferences
	}
	if u.SetCurrentProject {
		body["currentProjectId"] = u.CurrentProjectID
	}
	return json.Marshal(body)
}

func (c *Client) UpdatePreferences(ctx context.Context, update PreferencesUpdate) (store.Preferences, *string, error) {
	var out struct {
		Preferences      store.Preferences `json:"preferences"`
		CurrentProjectID *string           `json:"currentProjectId"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/user/preferences", update, &out); err != nil {
		return store.Preferences{}, nil, err
	}
	return out.Preferences, out.CurrentProjectID, nil
}

func (c *Client) ListProjects(ctx context.Context) (store.ProjectList, error) {
	var out store.ProjectList
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return store.ProjectList{}, err
	}
	return out, nil
}

// ProjectDraft is the create input. Empty optional fields take the server
// defaults.
type ProjectDraft struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
}

func (c *Client) CreateProject(ctx context.Context, draft ProjectDraft) (store.Project, store.ProjectList, error) {
	var out struct {
		Project          store.Project   `json:"project"`
		Projects         []store.Project `json:"projects"`
		CurrentProjectID *string         `json:"currentProjectId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/projects", draft, &out); err != nil {
		return store.Project{}, store.ProjectList{}, err
	}
	return out.Project, store.ProjectList{Projects: out.Projects, CurrentProjectID: out.CurrentProjectID}, nil
}

func (c *Client) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	var out struct {
		Project store.Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(projectID), nil, &out); err != nil {
		return store.Project{}, err
	}
	return out.Project, nil
}

// ProjectUpdate is a sparse replace; nil fields are not sent.
type ProjectUpdate struct {
	Name            *string              `json:"name,omitempty"`
	Description     *string              `json:"description,omitempty"`
	Icon            *string              `json:"icon,omitempty"`
	Color           *string              `json:"color,omitempty"`
	Documents       *[]document.Meta     `json:"documents,omitempty"`
	DocumentContent *document.ContentMap `json:"documentContent,omitempty"`
	TodoLists       *document.NoteLists  `json:"todoLists,omitempty"`
}

// SnapshotUpdate replaces exactly the three collections.
func SnapshotUpdate(snapshot document.Snapshot) ProjectUpdate {
	documents := snapshot.Documents
	if documents == nil {
		documents = []document.Meta{}
	}
	return ProjectUpdate{
		Documents:       &documents,
		DocumentContent: &snapshot.DocumentContent,
		TodoLists:       &snapshot.NoteLists,
	}
}

func (c *Client) ReplaceProject(ctx context.Context, projectID string, update ProjectUpdate) (store.Project, error) {
	var out struct {
		Project store.Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodPut, projectPath(projectID), update, &out); err != nil {
		return store.Project{}, err
	}
	return out.Project, nil
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) (store.ProjectList, error) {
	var out store.ProjectList
	if err := c.do(ctx, http.MethodDelete, projectPath(projectID), nil, &out); err != nil {
		return store.ProjectList{}, err
	}
	return out, nil
}

func (c *Client) SelectProject(ctx context.Context, projectID string) (store.Project, error) {
	var out struct {
		Project store.Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodPut, projectPath(projectID)+"/select", nil, &out); err != nil {
		return store.Project{}, err
	}
	return out.Project, nil
}

func (c *Client) Search(ctx context.Context, projectID, query string) (search.Response, error) {
	var out search.Response
	path := projectPath(projectID) + "/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return search.Response{}, err
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, projectID string) ([]store.CommitInfo, error) {
	var out struct {
		Commits []store.CommitInfo `json:"commits"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(projectID)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out.Commits, nil
}

func (c *Client) Snapshot(ctx context.Context, projectID, hash string) (document.Snapshot, store.CommitInfo, error) {
	var out struct {
		Commit   store.CommitInfo  `json:"commit"`
		Snapshot document.Snapshot `json:"snapshot"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(projectID)+"/history/"+url.PathEscape(hash), nil, &out); err != nil {
		return document.Snapshot{}, store.CommitInfo{}, err
	}
	return out.Snapshot, out.Commit, nil
}

// File is a downloaded export.
type File struct {
	Name string
	Type string
	Data []byte
}

func (c *Client) ExportDocument(ctx context.Context, projectID, documentID string) (File, error) {
	return c.download(ctx, projectPath(projectID)+"/documents/"+url.PathEscape(documentID)+"/export")
}

func (c *Client) ExportArchive(ctx context.Context, projectID string) (File, error) {
	return c.download(ctx, projectPath(projectID)+"/export")
}

// PublishArchive uploads the project archive and returns its temporary link.
func (c *Client) PublishArchive(ctx context.Context, projectID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, projectPath(projectID)+"/export/publish", nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) Ask(ctx context.Context, projectID, prompt string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	body := map[string]string{"prompt": prompt}
	if err := c.do(ctx, http.MethodPost, projectPath(projectID)+"/assistant", body, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// AdminUser is a user together with its projects, as listed to admins.
type AdminUser struct {
	store.User
	Projects []store.Project `json:"projects"`
}

func (c *Client) AllData(ctx context.Context) ([]AdminUser, error) {
	var out struct {
		Users []AdminUser `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/admin/all-data", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) AdminDeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/user/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) AdminDeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/project/"+url.PathEscape(projectID), nil, nil)
}

func projectPath(projectID string) string {
	return "/api/projects/" + url.PathEscape(projectID)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, path string) (File, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return File{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return File{}, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	file := File{Type: resp.Header.Get("Content-Type"), Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		file.Name = params["filename"]
	}
	return file, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
