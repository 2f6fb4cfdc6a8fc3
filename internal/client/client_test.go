package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docshub/api/internal/app"
	"docshub/api/internal/auth"
	"docshub/api/internal/autosave"
	"docshub/api/internal/document"
	"docshub/api/internal/session"
	"docshub/api/internal/store"
)

const testPassword = "secret123"

func newTestClient(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	db, err := store.OpenBadger("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := app.New(app.Deps{
		Store:  db,
		Tokens: auth.NewAuthenticator("test-secret", time.Hour),
		Logger: zerolog.Nop(),
	})
	server := httptest.NewServer(app.NewHTTPServer(svc, "*").Handler())
	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})
	return New(server.URL, WithHTTPClient(server.Client())), server
}

func signedUp(t *testing.T, username string) (*Client, *httptest.Server) {
	t.Helper()
	c, server := newTestClient(t)
	if _, err := c.SignUp(context.Background(), username, testPassword); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	return c, server
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSignUpKeepsToken(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	available, err := c.CheckUsername(ctx, "Avery")
	if err != nil || !available {
		t.Fatalf("expected username available, got %v %v", available, err)
	}
	result, err := c.SignUp(ctx, "Avery", testPassword)
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if result.Token == "" || c.Token() != result.Token {
		t.Fatalf("expected token to be kept, got %q", c.Token())
	}

	user, list, err := c.UserData(ctx)
	if err != nil {
		t.Fatalf("user data: %v", err)
	}
	if user.Username != "avery" || user.ID != result.UserID {
		t.Fatalf("unexpected user %+v", user)
	}
	if len(list.Projects) != 0 || list.CurrentProjectID != nil {
		t.Fatalf("expected no projects, got %+v", list)
	}

	available, err = c.CheckUsername(ctx, "AVERY")
	if err != nil || available {
		t.Fatalf("expected username taken, got %v %v", available, err)
	}
}

func TestErrorsDecodeIntoAPIError(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx := context.Background()

	_, err := New(c.baseURL).Login(ctx, "avery", "wrong-password")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Invalid credentials" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	if _, err := New(c.baseURL).ListProjects(ctx); !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401 without token, got %v", err)
	}
	if _, err := c.GetProject(ctx, "missing"); !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestProjectLifecycle(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx := context.Background()

	project, list, err := c.CreateProject(ctx, ProjectDraft{Name: "  Payments  ", Color: "bg-rose-500"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if project.Name != "Payments" || project.Color != "bg-rose-500" {
		t.Fatalf("unexpected project %+v", project)
	}
	if list.CurrentProjectID == nil || *list.CurrentProjectID != project.ID {
		t.Fatalf("expected new project selected, got %+v", list.CurrentProjectID)
	}

	name := "Billing"
	updated, err := c.ReplaceProject(ctx, project.ID, ProjectUpdate{Name: &name})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.Name != "Billing" || updated.Color != "bg-rose-500" {
		t.Fatalf("sparse replace changed too much: %+v", updated)
	}

	blank := "   "
	if _, err := c.ReplaceProject(ctx, project.ID, ProjectUpdate{Name: &blank}); !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400 for blank name, got %v", err)
	}

	if _, err := c.SelectProject(ctx, project.ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	list, err = c.DeleteProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(list.Projects) != 0 || list.CurrentProjectID != nil {
		t.Fatalf("expected empty list after delete, got %+v", list)
	}
}

func TestPreferencesUpdateClearsSelection(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx := context.Background()
	if _, _, err := c.CreateProject(ctx, ProjectDraft{Name: "One"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	prefs := store.Preferences{DarkMode: true, SelectedDoc: "apis"}
	got, current, err := c.UpdatePreferences(ctx, PreferencesUpdate{Preferences: &prefs, SetCurrentProject: true})
	if err != nil {
		t.Fatalf("update preferences: %v", err)
	}
	if !got.DarkMode || got.SelectedDoc != "apis" || current != nil {
		t.Fatalf("unexpected preferences %+v current=%v", got, current)
	}
}

func TestPreferencesUpdateMarshalsSparseBody(t *testing.T) {
	body, err := PreferencesUpdate{}.MarshalJSON()
	if err != nil || string(body) != "{}" {
		t.Fatalf("expected empty object, got %s %v", body, err)
	}
	body, err = PreferencesUpdate{SetCurrentProject: true}.MarshalJSON()
	if err != nil || string(body) != `{"currentProjectId":null}` {
		t.Fatalf("expected explicit null, got %s %v", body, err)
	}
}

func TestWorkspaceSeedsDefaultsAndSaves(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx := context.Background()
	project, _, err := c.CreateProject(ctx, ProjectDraft{Name: "Payments"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		statusMu sync.Mutex
		statuses []autosave.Status
	)
	w, err := Open(ctx, c, project.ID, WorkspaceOptions{
		Debounce: 20 * time.Millisecond,
		OnStatus: func(status autosave.Status) {
			statusMu.Lock()
			statuses = append(statuses, status)
			statusMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = w.Close(ctx) }()

	if w.Editor().Selected() != document.FallbackDocumentID {
		t.Fatalf("expected fallback selection, got %q", w.Editor().Selected())
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush seeded defaults: %v", err)
	}
	stored, err := c.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Documents) != len(document.BuiltInIDs()) {
		t.Fatalf("expected %d seeded documents, got %d", len(document.BuiltInIDs()), len(stored.Documents))
	}

	ed := w.Editor()
	if err := ed.StartEditing(); err != nil {
		t.Fatalf("start editing: %v", err)
	}
	if err := ed.UpdateDraft("# Architecture\n\nEvent driven."); err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if err := ed.SaveEdit(); err != nil {
		t.Fatalf("save edit: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if w.Dirty() || w.Status() != autosave.StatusSaved {
		t.Fatalf("expected saved state, got %s", w.Status())
	}

	stored, err = c.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	content, ok := stored.DocumentContent.Get(document.FallbackDocumentID)
	if !ok || content.Content != "# Architecture\n\nEvent driven." {
		t.Fatalf("edit not persisted: %+v", content)
	}
	if !w.LastSaved().Equal(stored.UpdatedAt) {
		t.Fatalf("expected last saved %v, got %v", stored.UpdatedAt, w.LastSaved())
	}

	file, err := c.ExportDocument(ctx, project.ID, document.FallbackDocumentID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if file.Name != "Architecture_Overview_overview.md" || !strings.Contains(string(file.Data), "Event driven.") {
		t.Fatalf("unexpected export %q %q", file.Name, file.Data)
	}

	statusMu.Lock()
	defer statusMu.Unlock()
	if len(statuses) == 0 || statuses[len(statuses)-1] != autosave.StatusSaved {
		t.Fatalf("expected status transitions ending in saved, got %v", statuses)
	}
}

func TestWorkspaceStoresSelectedDocument(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx := context.Background()
	project, _, err := c.CreateProject(ctx, ProjectDraft{Name: "Payments"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := Open(ctx, c, project.ID, WorkspaceOptions{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = w.Close(ctx) }()

	if err := w.Editor().Select("apis"); err != nil {
		t.Fatalf("select: %v", err)
	}
	eventually(t, "selectedDoc preference", func() bool {
		user, _, err := c.UserData(ctx)
		return err == nil && user.Preferences.SelectedDoc == "apis"
	})

	reopened, err := Open(ctx, c, project.ID, WorkspaceOptions{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close(ctx) }()
	if reopened.Editor().Selected() != "apis" {
		t.Fatalf("expected stored selection, got %q", reopened.Editor().Selected())
	}
}

func TestWorkspaceAppliesRemoteSelection(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx := context.Background()
	project, _, err := c.CreateProject(ctx, ProjectDraft{Name: "Payments"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w, err := Open(ctx, c, project.ID, WorkspaceOptions{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = w.Close(ctx) }()

	w.apply(session.Event{Type: session.EventSelectionChanged, DocumentID: "security"})
	if w.Editor().Selected() != "security" {
		t.Fatalf("expected remote selection applied, got %q", w.Editor().Selected())
	}

	later := w.LastSaved().Add(time.Minute)
	w.apply(session.Event{Type: session.EventProjectUpdated, ProjectID: project.ID, UpdatedAt: later})
	at, ok := w.RemoteUpdate()
	if !ok || !at.Equal(later) {
		t.Fatalf("expected remote update at %v, got %v %v", later, at, ok)
	}
	w.apply(session.Event{Type: session.EventProjectUpdated, ProjectID: "other", UpdatedAt: later.Add(time.Hour)})
	if at, _ := w.RemoteUpdate(); !at.Equal(later) {
		t.Fatalf("foreign project update recorded: %v", at)
	}
}

func TestWatchDeliversEvents(t *testing.T) {
	c, _ := signedUp(t, "avery")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := c.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	project, _, err := c.CreateProject(context.Background(), ProjectDraft{Name: "Payments"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case event := <-stream:
		if event.Type != session.EventProjectUpdated || event.ProjectID != project.ID {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	eventually(t, "stream close", func() bool {
		select {
		case _, ok := <-stream:
			return !ok
		default:
			return false
		}
	})
}

func TestWatchRequiresLogin(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Watch(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}

	bad := New(c.baseURL, WithToken("not-a-token"))
	if _, err := bad.Watch(context.Background()); !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401, got %v", err)
	}
}
