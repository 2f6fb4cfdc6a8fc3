// Package editor implements the view/edit state machine for the selected
// document of an open project.
package editor

import (
	"errors"
	"fmt"
	"sync"

	"docshub/api/internal/document"
)

type Mode string

const (
	ModeViewing Mode = "viewing"
	ModeEditing Mode = "editing"
)

var (
	ErrNotEditing     = errors.New("no edit in progress")
	ErrAlreadyEditing = errors.New("an edit is already in progress")
	// ErrDraftActive blocks anything that would move the selection while a
	// draft is open. Save or cancel first.
	ErrDraftActive = errors.New("save or cancel the current draft before switching documents")
)

type ChangeKind string

const (
	ChangeSelection ChangeKind = "selection"
	ChangeMode      ChangeKind = "mode"
)

// Change is delivered to subscribers after the selection or mode moves.
type Change struct {
	Kind       ChangeKind
	DocumentID string
	Mode       Mode
}

// Session owns the selected document id and the draft buffer. It is the only
// holder of that state; other views learn about changes by subscribing.
type Session struct {
	mu          sync.Mutex
	collection  *document.Collection
	selected    string
	mode        Mode
	draft       string
	nextSubID   int
	subscribers map[int]chan Change
}

// New opens a session on collection. selected is kept when it names an
// existing document; otherwise the first document is chosen.
func New(collection *document.Collection, selected string) *Session {
	s := &Session{
		collection:  collection,
		mode:        ModeViewing,
		subscribers: make(map[int]chan Change),
	}
	if _, ok := collection.Document(selected); ok {
		s.selected = selected
	} else if docs := collection.Documents(); len(docs) > 0 {
		s.selected = docs[0].ID
	} else {
		s.selected = document.FallbackDocumentID
	}
	return s
}

func (s *Session) Collection() *document.Collection {
	return s.collection
}

func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Draft returns the edit buffer. It is empty while viewing.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// View returns what should be rendered: the draft while editing, otherwise
// the committed content of the selected document.
func (s *Session) View() document.Content {
	s.mu.Lock()
	selected, mode, draft := s.selected, s.mode, s.draft
	s.mu.Unlock()

	content, _ := s.collection.Content(selected)
	if mode == ModeEditing {
		content.Content = draft
	}
	return content
}

// Subscribe returns a channel of selection and mode changes and a func that
// releases it. Delivery never blocks the session; a subscriber that falls
// more than buffer changes behind misses the overflow.
func (s *Session) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish must be called with s.mu held.
func (s *Session) publish(change Change) {
	for _, ch := range s.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

// Select moves the selection to id. It is refused while a draft is open.
func (s *Session) Select(id string) error {
	if _, ok := s.collection.Document(id); !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeEditing {
		return ErrDraftActive
	}
	s.setSelectedLocked(id)
	return nil
}

func (s *Session) setSelectedLocked(id string) {
	if s.selected == id {
		return
	}
	s.selected = id
	s.publish(Change{Kind: ChangeSelection, DocumentID: id, Mode: s.mode})
}

// StartEditing copies the committed content of the selected document into the
// draft buffer.
func (s *Session) StartEditing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeEditing {
		return ErrAlreadyEditing
	}
	if _, ok := s.collection.Document(s.selected); !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, s.selected)
	}
	content, _ := s.collection.Content(s.selected)
	s.draft = content.Content
	s.mode = ModeEditing
	s.publish(Change{Kind: ChangeMode, DocumentID: s.selected, Mode: s.mode})
	return nil
}

func (s *Session) UpdateDraft(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditing {
		return ErrNotEditing
	}
	s.draft = text
	return nil
}

// SaveEdit commits the draft into the collection. This is a local commit;
// persistence is left to whoever observes the collection.
func (s *Session) SaveEdit() error {
	s.mu.Lock()
	if s.mode != ModeEditing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	selected, draft := s.selected, s.draft
	s.mu.Unlock()

	if err := s.collection.SetContent(selected, draft); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeViewing
	s.draft = ""
	s.publish(Change{Kind: ChangeMode, DocumentID: s.selected, Mode: s.mode})
	return nil
}

// CancelEdit discards the draft. The collection is not touched.
func (s *Session) CancelEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeEditing {
		return ErrNotEditing
	}
	s.mode = ModeViewing
	s.draft = ""
	s.publish(Change{Kind: ChangeMode, DocumentID: s.selected, Mode: s.mode})
	return nil
}

// AddDocument creates a document and selects it.
func (s *Session) AddDocument(title string, category document.Category) (document.Meta, error) {
	if s.Mode() == ModeEditing {
		return document.Meta{}, ErrDraftActive
	}
	meta, err := s.collection.AddDocument(title, category)
	if err != nil {
		return document.Meta{}, err
	}
	s.mu.Lock()
	s.setSelectedLocked(meta.ID)
	s.mu.Unlock()
	return meta, nil
}

// DeleteDocument removes a user-created document and selects whatever the
// collection reports as next.
func (s *Session) DeleteDocument(id string) error {
	if s.Mode() == ModeEditing {
		return ErrDraftActive
	}
	next, err := s.collection.DeleteDocument(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.setSelectedLocked(next)
	s.mu.Unlock()
	return nil
}

// Note operations act on the selected document and ignore the edit mode.

func (s *Session) AddNote(title, content string) (document.Note, error) {
	return s.collection.AddNote(s.Selected(), title, content)
}

func (s *Session) ToggleNote(noteID string) (document.Note, error) {
	return s.collection.ToggleNote(s.Selected(), noteID)
}

func (s *Session) DeleteNote(noteID string) error {
	return s.collection.DeleteNote(s.Selected(), noteID)
}

func (s *Session) Notes() []document.Note {
	return s.collection.Notes(s.Selected())
}
