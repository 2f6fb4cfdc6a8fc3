package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docshub/api/internal/autosave"
	"docshub/api/internal/document"
	"docshub/api/internal/editor"
	"docshub/api/internal/session"
	"docshub/api/internal/store"
)

type WorkspaceOptions struct {
	Debounce   time.Duration
	MaxBackoff time.Duration
	Logger     zerolog.Logger
	OnStatus   func(autosave.Status)
}

// Workspace is one open project: the editable collection, the editor session
// over it and the autosave loop that writes it back. Selection moves are
// stored as the user's selectedDoc preference.
type Workspace struct {
	client  *Client
	editor  *editor.Session
	syncer  *autosave.Synchronizer
	logger  zerolog.Logger
	release func()
	stopped chan struct{}

	mu            sync.Mutex
	project       store.Project
	preferences   store.Preferences
	lastSaved     time.Time
	remoteUpdated time.Time
	echo          string
}

// Open loads projectID and starts syncing it. A project without documents is
// seeded with the built-in set, which is then saved like any other edit.
func Open(ctx context.Context, c *Client, projectID string, opts WorkspaceOptions) (*Workspace, error) {
	user, _, err := c.UserData(ctx)
	if err != nil {
		return nil, err
	}
	project, err := c.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	collection := document.NewCollection(project.Snapshot())
	w := &Workspace{
		client:      c,
		editor:      editor.New(collection, user.Preferences.SelectedDoc),
		logger:      opts.Logger.With().Str("project_id", project.ID).Logger(),
		stopped:     make(chan struct{}),
		project:     project,
		preferences: user.Preferences,
		lastSaved:   project.UpdatedAt,
	}
	w.syncer = autosave.Watch(collection, autosave.SaverFunc(w.save), autosave.Options{
		Debounce:   opts.Debounce,
		MaxBackoff: opts.MaxBackoff,
		Logger:     w.logger,
		OnStatus:   opts.OnStatus,
	})
	if len(project.Documents) == 0 {
		w.syncer.MarkDirty()
	}

	changes, release := w.editor.Subscribe(8)
	w.release = release
	go w.followSelection(changes)
	return w, nil
}

func (w *Workspace) Editor() *editor.Session {
	return w.editor
}

func (w *Workspace) Collection() *document.Collection {
	return w.editor.Collection()
}

// Project returns the project as of the last successful save.
func (w *Workspace) Project() store.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.project
}

func (w *Workspace) Status() autosave.Status {
	return w.syncer.Status()
}

func (w *Workspace) Dirty() bool {
	return w.syncer.Dirty()
}

func (w *Workspace) LastError() error {
	return w.syncer.LastError()
}

// LastSaved is the server's updatedAt of the last save this workspace made,
// or of the project as opened.
func (w *Workspace) LastSaved() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSaved
}

// RemoteUpdate reports a save of this project by another session that is
// newer than anything this workspace wrote.
func (w *Workspace) RemoteUpdate() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remoteUpdated.After(w.lastSaved) {
		return w.remoteUpdated, true
	}
	return time.Time{}, false
}

func (w *Workspace) Flush(ctx context.Context) error {
	return w.syncer.Flush(ctx)
}

// Close saves pending edits and stops following selection changes.
func (w *Workspace) Close(ctx context.Context) error {
	err := w.syncer.Close(ctx)
	w.release()
	<-w.stopped
	return err
}

// Follow applies the user's events from other sessions until ctx ends or
// the stream drops.
func (w *Workspace) Follow(ctx context.Context) error {
	events, err := w.client.Watch(ctx)
	if err != nil {
		return err
	}
	for event := range events {
		w.apply(event)
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("docshub: event stream closed")
}

func (w *Workspace) apply(event session.Event) {
	switch event.Type {
	case session.EventSelectionChanged:
		if event.DocumentID == "" || event.DocumentID == w.editor.Selected() {
			return
		}
		w.mu.Lock()
		w.echo = event.DocumentID
		w.mu.Unlock()
		if err := w.editor.Select(event.DocumentID); err != nil {
			w.mu.Lock()
			w.echo = ""
			w.mu.Unlock()
			w.logger.Debug().Err(err).Str("document_id", event.DocumentID).Msg("remote selection ignored")
		}
	case session.EventProjectUpdated:
		if event.ProjectID != w.Project().ID {
			return
		}
		w.mu.Lock()
		if event.UpdatedAt.After(w.remoteUpdated) {
			w.remoteUpdated = event.UpdatedAt
		}
		w.mu.Unlock()
	}
}

func (w *Workspace) save(ctx context.Context, snapshot document.Snapshot) error {
	w.mu.Lock()
	projectID := w.project.ID
	w.mu.Unlock()

	project, err := w.client.ReplaceProject(ctx, projectID, SnapshotUpdate(snapshot))
	if err != nil {
		return fmt.Errorf("save project %s: %w", projectID, err)
	}
	w.mu.Lock()
	w.project = project
	w.lastSaved = project.UpdatedAt
	w.mu.Unlock()
	return nil
}

func (w *Workspace) followSelection(changes <-chan editor.Change) {
	defer close(w.stopped)
	for change := range changes {
		if change.Kind != editor.ChangeSelection {
			continue
		}
		w.mu.Lock()
		remote := w.echo == change.DocumentID
		if remote {
			w.echo = ""
		}
		prefs := w.preferences
		prefs.SelectedDoc = change.DocumentID
		w.preferences = prefs
		w.mu.Unlock()
		if remote {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), autosave.DefaultTimeout)
		_, _, err := w.client.UpdatePreferences(ctx, PreferencesUpdate{Preferences: &prefs})
		cancel()
		if err != nil {
			w.logger.Warn().Err(err).Str("document_id", change.DocumentID).Msg("selected document not stored")
		}
	}
}
