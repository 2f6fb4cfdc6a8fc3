package document

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"docshub/api/internal/util"
)

// Collection is the working copy of one project's documents, content and
// notes. Mutations are local; registered observers are told after each one
// so a synchronizer can persist the result.
type Collection struct {
	mu        sync.RWMutex
	documents []Meta
	content   ContentMap
	notes     NoteLists
	observers []func()
	now       func() time.Time
}

type Option func(*Collection)

func WithClock(now func() time.Time) Option {
	return func(c *Collection) {
		c.now = now
	}
}

// NewCollection seeds a collection from a persisted snapshot. A snapshot
// without documents is replaced by the built-in default set; built-in
// documents that lack a content entry get their seed content.
func NewCollection(snapshot Snapshot, opts ...Option) *Collection {
	seeded := snapshot.Clone()
	defaults := DefaultSnapshot()
	if len(seeded.Documents) == 0 {
		seeded.Documents = defaults.Documents
	}
	for _, doc := range seeded.Documents {
		if seeded.DocumentContent.Has(doc.ID) {
			continue
		}
		if content, ok := defaults.DocumentContent.Get(doc.ID); ok {
			seeded.DocumentContent.Set(doc.ID, content)
		}
	}

	c := &Collection{
		documents: seeded.Documents,
		content:   seeded.DocumentContent,
		notes:     seeded.NoteLists,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe registers fn to run after every successful mutation.
func (c *Collection) Observe(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Collection) notify() {
	c.mu.RLock()
	observers := append([]func(){}, c.observers...)
	c.mu.RUnlock()
	for _, fn := range observers {
		fn()
	}
}

func (c *Collection) Documents() []Meta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Meta{}, c.documents...)
}

func (c *Collection) Document(id string) (Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	index := c.indexOf(id)
	if index < 0 {
		return Meta{}, false
	}
	return c.documents[index], true
}

// Content returns the entry for id. Documents without an entry render as
// empty content under their sidebar title.
func (c *Collection) Content(id string) (Content, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if content, ok := c.content.Get(id); ok {
		return content, true
	}
	if index := c.indexOf(id); index >= 0 {
		return Content{Title: c.documents[index].Title}, false
	}
	return Content{}, false
}

func (c *Collection) Notes(documentID string) []Note {
	c.mu.RLock()
	defer c.mu.RUnlock()
	notes, _ := c.notes.Get(documentID)
	return append([]Note{}, notes...)
}

// Search filters the sidebar by title or category.
func (c *Collection) Search(term string) []Meta {
	return Filter(c.Documents(), term)
}

func (c *Collection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Documents:       c.documents,
		DocumentContent: c.content,
		NoteLists:       c.notes,
	}.Clone()
}

// AddDocument appends a user-created document with placeholder content and
// returns its metadata. The id is the slugged title plus a millisecond
// timestamp.
func (c *Collection) AddDocument(title string, category Category) (Meta, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Meta{}, ErrTitleRequired
	}
	if !category.Known() {
		category = CategoryCustom
	}

	c.mu.Lock()
	now := c.now()
	id := Slug(title) + "-" + util.TimestampToken(now)
	for c.indexOf(id) >= 0 || c.content.Has(id) {
		now = now.Add(time.Millisecond)
		id = Slug(title) + "-" + util.TimestampToken(now)
	}
	meta := Meta{ID: id, Title: title, Icon: IconFileText, Category: category}
	c.documents = append(c.documents, meta)
	c.content.Set(id, Content{
		Title:   title,
		Content: fmt.Sprintf("# %s\n\nWrite your documentation here...", title),
	})
	c.mu.Unlock()

	c.notify()
	return meta, nil
}

// DeleteDocument removes a user-created document and its content entry. It
// returns the id that should be selected next: the first remaining document,
// or FallbackDocumentID when none remain.
func (c *Collection) DeleteDocument(id string) (string, error) {
	if IsBuiltIn(id) {
		return "", ErrBuiltInDocument
	}

	c.mu.Lock()
	index := c.indexOf(id)
	if index < 0 && !c.content.Has(id) {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if index >= 0 {
		c.documents = append(c.documents[:index:index], c.documents[index+1:]...)
	}
	c.content.Delete(id)
	next := FallbackDocumentID
	if len(c.documents) > 0 {
		next = c.documents[0].ID
	}
	c.mu.Unlock()

	c.notify()
	return next, nil
}

// SetContent replaces the text of id. The title is left alone.
func (c *Collection) SetContent(id, text string) error {
	c.mu.Lock()
	current, ok := c.content.Get(id)
	if !ok {
		index := c.indexOf(id)
		if index < 0 {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		current.Title = c.documents[index].Title
	}
	current.Content = text
	c.content.Set(id, current)
	c.mu.Unlock()

	c.notify()
	return nil
}

// SetTitle renames id in both the sidebar and the content entry.
func (c *Collection) SetTitle(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrTitleRequired
	}

	c.mu.Lock()
	index := c.indexOf(id)
	if index < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.documents[index].Title = title
	current, _ := c.content.Get(id)
	current.Title = title
	c.content.Set(id, current)
	c.mu.Unlock()

	c.notify()
	return nil
}

// AddNote attaches a user-created note to documentID.
func (c *Collection) AddNote(documentID, title, content string) (Note, error) {
	if strings.TrimSpace(title) == "" {
		return Note{}, ErrNoteTitle
	}
	if WordCount(content) > MaxNoteWords {
		return Note{}, ErrNoteTooLong
	}
	note := Note{
		ID:       util.NewID("note"),
		Title:    title,
		Content:  content,
		IsCustom: true,
	}

	c.mu.Lock()
	notes, _ := c.notes.Get(documentID)
	c.notes.Set(documentID, append(append([]Note{}, notes...), note))
	c.mu.Unlock()

	c.notify()
	return note, nil
}

func (c *Collection) ToggleNote(documentID, noteID string) (Note, error) {
	c.mu.Lock()
	notes, _ := c.notes.Get(documentID)
	index := noteIndex(notes, noteID)
	if index < 0 {
		c.mu.Unlock()
		return Note{}, fmt.Errorf("%w: note %s", ErrNotFound, noteID)
	}
	updated := append([]Note{}, notes...)
	updated[index].Completed = !updated[index].Completed
	c.notes.Set(documentID, updated)
	toggled := updated[index]
	c.mu.Unlock()

	c.notify()
	return toggled, nil
}

// DeleteNote removes a user-created note. Built-in notes are rejected and
// stay in place.
func (c *Collection) DeleteNote(documentID, noteID string) error {
	c.mu.Lock()
	notes, _ := c.notes.Get(documentID)
	index := noteIndex(notes, noteID)
	if index < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: note %s", ErrNotFound, noteID)
	}
	if !notes[index].IsCustom {
		c.mu.Unlock()
		return ErrBuiltInNote
	}
	updated := make([]Note, 0, len(notes)-1)
	updated = append(updated, notes[:index]...)
	updated = append(updated, notes[index+1:]...)
	c.notes.Set(documentID, updated)
	c.mu.Unlock()

	c.notify()
	return nil
}

func (c *Collection) indexOf(id string) int {
	for i, doc := range c.documents {
		if doc.ID == id {
			return i
		}
	}
	return -1
}

func noteIndex(notes []Note, id string) int {
	for i, note := range notes {
		if note.ID == id {
			return i
		}
	}
	return -1
}
