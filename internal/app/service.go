package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docshub/api/internal/assistant"
	"docshub/api/internal/auth"
	"docshub/api/internal/authpw"
	"docshub/api/internal/document"
	"docshub/api/internal/export"
	"docshub/api/internal/gitrepo"
	"docshub/api/internal/metrics"
	"docshub/api/internal/search"
	events "docshub/api/internal/session"
	"docshub/api/internal/store"
	"docshub/api/internal/util"
)

const (
	sideEffectTimeout = 30 * time.Second
	searchPageSize    = 20
	historyPageSize   = 50
)

type Session struct {
	Token     string
	UserID    string
	Username  string
	Role      string
	ExpiresAt time.Time
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminUser is a user record together with every project it owns.
type AdminUser struct {
	store.User
	Projects []store.Project `json:"projects"`
}

// Deps are the collaborators of a Service. Store and Tokens are required;
// the rest fall back to disabled or in-process implementations.
type Deps struct {
	Store     store.Store
	Tokens    *auth.Authenticator
	Search    *search.Service
	History   *gitrepo.Service
	Export    *export.Service
	Assistant *assistant.Service
	Notifier  events.Notifier
	Logger    zerolog.Logger
}

type Service struct {
	store     store.Store
	accounts  *authpw.Service
	tokens    *auth.Authenticator
	search    *search.Service
	history   *gitrepo.Service
	exporter  *export.Service
	assistant *assistant.Service
	notifier  events.Notifier
	logger    zerolog.Logger
	// sideEffect runs work that must never fail the originating request.
	// Work sharing a key runs in submission order.
	sideEffect func(key string, fn func())
	effects    util.KeyedQueue
}

func New(deps Deps) *Service {
	s := &Service{
		store:     deps.Store,
		accounts:  authpw.NewService(deps.Store),
		tokens:    deps.Tokens,
		search:    deps.Search,
		history:   deps.History,
		exporter:  deps.Export,
		assistant: deps.Assistant,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
	}
	s.sideEffect = s.effects.Go
	if s.search == nil {
		s.search = search.NewService(nil, deps.Logger)
	}
	if s.exporter == nil {
		s.exporter = export.NewService(nil)
	}
	if s.assistant == nil {
		s.assistant = assistant.NewService(nil)
	}
	if s.notifier == nil {
		s.notifier = events.NewLocalNotifier()
	}
	return s
}

func (s *Service) Logger() zerolog.Logger {
	return s.logger
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Identity

func (s *Service) CheckUsername(ctx context.Context, username string) (bool, error) {
	available, err := s.accounts.UsernameAvailable(ctx, username)
	if err != nil {
		return false, accountError(err)
	}
	return available, nil
}

func (s *Service) SignUp(ctx context.Context, username, password string) (AuthResult, error) {
	user, err := s.accounts.SignUp(ctx, authpw.Credentials{Username: username, Password: password})
	if err != nil {
		return AuthResult{}, accountError(err)
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user signed up")
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, username, password string) (AuthResult, error) {
	user, err := s.accounts.SignIn(ctx, authpw.Credentials{Username: username, Password: password})
	if err != nil {
		return AuthResult{}, accountError(err)
	}
	return s.issue(user)
}

func (s *Service) issue(user store.User) (AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		ExpiresAt: expiresAt,
	}, nil
}

// UserData returns the caller's profile and projects.
func (s *Service) UserData(ctx context.Context, session Session) (store.User, store.ProjectList, error) {
	if err := s.requireUser(session); err != nil {
		return store.User{}, store.ProjectList{}, err
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return store.User{}, store.ProjectList{}, storeError(err, "User not found")
	}
	list, err := s.store.ListProjects(ctx, session.UserID)
	if err != nil {
		return store.User{}, store.ProjectList{}, storeError(err, "User not found")
	}
	return user, list, nil
}

// UpdatePreferences applies a sparse preference update. A new preference
// set announces the selected document to the caller's other sessions.
func (s *Service) UpdatePreferences(ctx context.Context, session Session, patch store.PreferencesPatch) (store.User, error) {
	if err := s.requireUser(session); err != nil {
		return store.User{}, err
	}
	user, err := s.store.UpdatePreferences(ctx, session.UserID, patch)
	if err != nil {
		if patch.SetCurrentProject && patch.CurrentProjectID != nil {
			return store.User{}, storeError(err, "Project not found")
		}
		return store.User{}, storeError(err, "User not found")
	}
	if patch.Preferences != nil {
		s.publish(events.Event{
			Type:       events.EventSelectionChanged,
			UserID:     session.UserID,
			DocumentID: patch.Preferences.SelectedDoc,
		})
	}
	if patch.SetCurrentProject && user.CurrentProjectID != nil {
		s.publish(events.Event{
			Type:      events.EventProjectSelected,
			UserID:    session.UserID,
			ProjectID: *user.CurrentProjectID,
		})
	}
	return user, nil
}

// Projects

func (s *Service) ListProjects(ctx context.Context, session Session) (store.ProjectList, error) {
	if err := s.requireUser(session); err != nil {
		return store.ProjectList{}, err
	}
	list, err := s.store.ListProjects(ctx, session.UserID)
	if err != nil {
		return store.ProjectList{}, storeError(err, "User not found")
	}
	return list, nil
}

func (s *Service) CreateProject(ctx context.Context, session Session, draft store.ProjectDraft) (store.Project, store.ProjectList, error) {
	if err := s.requireUser(session); err != nil {
		return store.Project{}, store.ProjectList{}, err
	}
	project, list, err := s.store.CreateProject(ctx, session.UserID, draft)
	if err != nil {
		return store.Project{}, store.ProjectList{}, storeError(err, "User not found")
	}
	s.logger.Info().Str("user_id", session.UserID).Str("project_id", project.ID).Msg("project created")
	s.search.IndexProject(store.Project{}, project)
	s.publish(events.Event{
		Type:      events.EventProjectUpdated,
		UserID:    session.UserID,
		ProjectID: project.ID,
		UpdatedAt: project.UpdatedAt,
	})
	return project, list, nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	return s.loadProject(ctx, session, projectID)
}

// ReplaceProject overwrites the supplied fields of one of the caller's
// projects. Concurrent writers are last-write-wins.
func (s *Service) ReplaceProject(ctx context.Context, session Session, projectID string, patch store.ProjectPatch) (store.Project, error) {
	collections := patch.TouchesCollections()
	previous, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return store.Project{}, err
	}
	updated, err := s.store.ReplaceProject(ctx, session.UserID, projectID, patch)
	metrics.ObserveReplace(collections, err)
	if err != nil {
		return store.Project{}, storeError(err, "Project not found")
	}

	s.search.IndexProject(previous, updated)
	if collections {
		s.commitHistory(session, updated)
	}
	s.publish(events.Event{
		Type:      events.EventProjectUpdated,
		UserID:    session.UserID,
		ProjectID: updated.ID,
		UpdatedAt: updated.UpdatedAt,
	})
	return updated, nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) (store.ProjectList, error) {
	project, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return store.ProjectList{}, err
	}
	list, err := s.store.DeleteProject(ctx, session.UserID, projectID)
	if err != nil {
		return store.ProjectList{}, storeError(err, "Project not found")
	}
	s.logger.Info().Str("user_id", session.UserID).Str("project_id", projectID).Msg("project deleted")
	s.dropProject(project)
	return list, nil
}

func (s *Service) SelectProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	if err := s.requireUser(session); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.SelectProject(ctx, session.UserID, projectID)
	if err != nil {
		return store.Project{}, storeError(err, "Project not found")
	}
	s.publish(events.Event{
		Type:      events.EventProjectSelected,
		UserID:    session.UserID,
		ProjectID: project.ID,
	})
	return project, nil
}

// Search, history, export and assistant

func (s *Service) Search(ctx context.Context, session Session, projectID, text string) (search.Response, error) {
	project, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return search.Response{}, err
	}
	return s.search.Search(project, search.Query{Text: strings.TrimSpace(text), Limit: searchPageSize}), nil
}

// History lists the snapshot commits of a project, newest first. It is empty
// when history is disabled.
func (s *Service) History(ctx context.Context, session Session, projectID string) ([]store.CommitInfo, error) {
	if _, err := s.loadProject(ctx, session, projectID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []store.CommitInfo{}, nil
	}
	commits, err := s.history.History(projectID, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if commits == nil {
		commits = []store.CommitInfo{}
	}
	return commits, nil
}

func (s *Service) HistorySnapshot(ctx context.Context, session Session, projectID, hash string) (document.Snapshot, store.CommitInfo, error) {
	if _, err := s.loadProject(ctx, session, projectID); err != nil {
		return document.Snapshot{}, store.CommitInfo{}, err
	}
	if s.history == nil {
		return document.Snapshot{}, store.CommitInfo{}, notFound("Snapshot not found")
	}
	snapshot, commit, err := s.history.SnapshotAt(projectID, hash)
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return document.Snapshot{}, store.CommitInfo{}, notFound("Snapshot not found")
	}
	if err != nil {
		return document.Snapshot{}, store.CommitInfo{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snapshot, commit, nil
}

func (s *Service) ExportDocument(ctx context.Context, session Session, projectID, documentID string) (*export.Result, error) {
	project, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Document(project, documentID)
	if errors.Is(err, export.ErrContentUnavailable) {
		return nil, notFound("Document not found")
	}
	return result, err
}

func (s *Service) ExportArchive(ctx context.Context, session Session, projectID string) (*export.Result, error) {
	project, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Archive(project)
}

// PublishArchive uploads the project archive and returns a temporary link.
func (s *Service) PublishArchive(ctx context.Context, session Session, projectID string) (string, error) {
	project, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return "", err
	}
	if !s.exporter.CanPublish() {
		return "", unavailable("EXPORT_UNAVAILABLE", "Object storage is not configured")
	}
	url, err := s.exporter.Publish(ctx, project)
	if err != nil {
		return "", fmt.Errorf("publish archive: %w", err)
	}
	return url, nil
}

func (s *Service) Ask(ctx context.Context, session Session, projectID, prompt string) (assistant.Answer, error) {
	if strings.TrimSpace(prompt) == "" {
		return assistant.Answer{}, validationError("Prompt is required")
	}
	if !s.assistant.Available() {
		return assistant.Answer{}, unavailable("ASSISTANT_UNAVAILABLE", "AI assistant is not configured")
	}
	project, err := s.loadProject(ctx, session, projectID)
	if err != nil {
		return assistant.Answer{}, err
	}
	answer, err := s.assistant.Ask(ctx, project, prompt)
	switch {
	case errors.Is(err, assistant.ErrEmptyPrompt):
		return assistant.Answer{}, validationError("Prompt is required")
	case errors.Is(err, assistant.ErrNotConfigured):
		return assistant.Answer{}, unavailable("ASSISTANT_UNAVAILABLE", "AI assistant is not configured")
	case err != nil:
		return assistant.Answer{}, err
	}
	return answer, nil
}

// Subscribe streams the caller's change events until cancel is called.
func (s *Service) Subscribe(ctx context.Context, session Session) (<-chan events.Event, func(), error) {
	if err := s.requireUser(session); err != nil {
		return nil, nil, err
	}
	return s.notifier.Subscribe(ctx, session.UserID)
}

// Administration

// AllData lists every user with their projects. Password hashes never leave
// the store.
func (s *Service) AllData(ctx context.Context, session Session) ([]AdminUser, error) {
	if err := s.requireAdmin(session); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	result := make([]AdminUser, 0, len(users))
	for _, user := range users {
		list, err := s.store.ListProjects(ctx, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		result = append(result, AdminUser{User: user, Projects: list.Projects})
	}
	return result, nil
}

// Reindex pushes every stored project into the search index and returns how
// many were sent.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	var projects []store.Project
	for _, user := range users {
		list, err := s.store.ListProjects(ctx, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("list projects: %w", err)
		}
		projects = append(projects, list.Projects...)
	}
	s.search.ReindexAll(projects)
	return len(projects), nil
}

// AdminDeleteUser removes a user and, with it, every project it owns.
func (s *Service) AdminDeleteUser(ctx context.Context, session Session, userID string) error {
	if err := s.requireAdmin(session); err != nil {
		return err
	}
	list, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		return storeError(err, "User not found")
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return storeError(err, "User not found")
	}
	s.logger.Info().Str("admin_id", session.UserID).Str("user_id", userID).Int("projects", len(list.Projects)).Msg("user deleted")
	for _, project := range list.Projects {
		s.dropProject(project)
	}
	return nil
}

// AdminDeleteProject deletes a project by id alone, whoever owns it.
func (s *Service) AdminDeleteProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	if err := s.requireAdmin(session); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.FindProject(ctx, projectID)
	if err != nil {
		return store.Project{}, storeError(err, "Project not found")
	}
	if _, err := s.store.DeleteProject(ctx, project.OwnerID, projectID); err != nil {
		return store.Project{}, storeError(err, "Project not found")
	}
	s.logger.Info().Str("admin_id", session.UserID).Str("owner_id", project.OwnerID).Str("project_id", projectID).Msg("project deleted by admin")
	s.dropProject(project)
	return project, nil
}

// Side effects

func (s *Service) dropProject(project store.Project) {
	s.search.RemoveProject(project)
	if s.history != nil {
		s.sideEffect(projectKey(project.ID), func() {
			if err := s.history.Remove(project.ID); err != nil {
				metrics.SideEffectFailed("history")
				s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("remove history failed")
			}
		})
	}
	s.publish(events.Event{
		Type:      events.EventProjectDeleted,
		UserID:    project.OwnerID,
		ProjectID: project.ID,
	})
}

func (s *Service) commitHistory(session Session, project store.Project) {
	if s.history == nil {
		return
	}
	s.sideEffect(projectKey(project.ID), func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		// Commit the stored project, not the request's copy, so HEAD follows
		// the latest write.
		latest, err := s.store.FindProject(ctx, project.ID)
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		if err != nil {
			metrics.SideEffectFailed("history")
			s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("load project for history failed")
			return
		}
		message := fmt.Sprintf("Save %s", latest.Name)
		commit, changed, err := s.history.CommitSnapshot(project.ID, latest.Snapshot(), session.Username, message)
		if err != nil {
			metrics.SideEffectFailed("history")
			s.logger.Warn().Err(err).Str("project_id", project.ID).Msg("commit history failed")
			return
		}
		if changed {
			s.logger.Debug().Str("project_id", project.ID).Str("hash", commit.Hash).Msg("history committed")
		}
	})
}

func (s *Service) publish(event events.Event) {
	s.sideEffect("user:"+event.UserID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event); err != nil {
			metrics.SideEffectFailed("notify")
			s.logger.Warn().Err(err).Str("event", event.Type).Str("user_id", event.UserID).Msg("publish event failed")
		}
	})
}

func projectKey(projectID string) string {
	return "project:" + projectID
}

// accountError translates identity failures into the HTTP taxonomy.
func accountError(err error) error {
	var invalid *authpw.ValidationError
	switch {
	case errors.As(err, &invalid):
		return validationError(invalid.Message)
	case errors.Is(err, authpw.ErrUsernameTaken):
		return usernameTaken()
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return validationError("Invalid credentials")
	}
	return err
}

func storeError(err error, missing string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(missing)
	case errors.Is(err, store.ErrNameRequired):
		return validationError("Project name is required")
	case errors.Is(err, store.ErrUsernameTaken):
		return usernameTaken()
	}
	return err
}
