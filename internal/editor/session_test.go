package editor

import (
	"errors"
	"testing"

	"docshub/api/internal/document"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	return New(document.NewCollection(document.Snapshot{}), "overview")
}

func TestNewFallsBackToFirstDocument(t *testing.T) {
	s := New(document.NewCollection(document.Snapshot{}), "does-not-exist")
	if got := s.Selected(); got != "product-platform" {
		t.Fatalf("Selected() = %q, want product-platform", got)
	}
}

func TestEditLifecycle(t *testing.T) {
	s := newSession(t)
	committed := s.View().Content

	if err := s.SaveEdit(); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("SaveEdit() while viewing = %v, want ErrNotEditing", err)
	}
	if err := s.StartEditing(); err != nil {
		t.Fatalf("StartEditing() error = %v", err)
	}
	if s.Mode() != ModeEditing || s.Draft() != committed {
		t.Fatalf("draft should start from committed content, mode=%s", s.Mode())
	}
	if err := s.StartEditing(); !errors.Is(err, ErrAlreadyEditing) {
		t.Fatalf("second StartEditing() = %v", err)
	}

	if err := s.UpdateDraft("# Changed"); err != nil {
		t.Fatalf("UpdateDraft() error = %v", err)
	}
	if s.View().Content != "# Changed" {
		t.Fatal("View() should show the draft while editing")
	}
	if err := s.CancelEdit(); err != nil {
		t.Fatalf("CancelEdit() error = %v", err)
	}
	if s.View().Content != committed {
		t.Fatal("cancel must leave committed content untouched")
	}

	_ = s.StartEditing()
	_ = s.UpdateDraft("# Saved")
	if err := s.SaveEdit(); err != nil {
		t.Fatalf("SaveEdit() error = %v", err)
	}
	content, _ := s.Collection().Content("overview")
	if content.Content != "# Saved" || content.Title != "Architecture Overview" {
		t.Fatalf("unexpected committed content: %+v", content)
	}
	if s.Mode() != ModeViewing || s.Draft() != "" {
		t.Fatal("save should return to viewing with an empty draft")
	}
}

func TestSelectIsBlockedWhileEditing(t *testing.T) {
	s := newSession(t)
	_ = s.StartEditing()

	if err := s.Select("apis"); !errors.Is(err, ErrDraftActive) {
		t.Fatalf("Select() while editing = %v, want ErrDraftActive", err)
	}
	if _, err := s.AddDocument("New", document.CategoryCustom); !errors.Is(err, ErrDraftActive) {
		t.Fatalf("AddDocument() while editing = %v, want ErrDraftActive", err)
	}
	_ = s.CancelEdit()
	if err := s.Select("apis"); err != nil {
		t.Fatalf("Select() after cancel error = %v", err)
	}
	if err := s.Select("missing"); !errors.Is(err, document.ErrNotFound) {
		t.Fatalf("Select(missing) = %v, want ErrNotFound", err)
	}
}

func TestSubscribeReceivesSelectionChanges(t *testing.T) {
	s := newSession(t)
	changes, cancel := s.Subscribe(8)
	defer cancel()

	meta, err := s.AddDocument("Runbook", document.CategoryOperations)
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	change := <-changes
	if change.Kind != ChangeSelection || change.DocumentID != meta.ID {
		t.Fatalf("unexpected change %+v", change)
	}

	if err := s.DeleteDocument(meta.ID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	change = <-changes
	if change.DocumentID != "product-platform" {
		t.Fatalf("expected reselection of first document, got %+v", change)
	}
}

func TestCancelSubscriptionClosesChannel(t *testing.T) {
	s := newSession(t)
	changes, cancel := s.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-changes; ok {
		t.Fatal("expected closed channel")
	}
	if err := s.Select("apis"); err != nil {
		t.Fatalf("Select() after unsubscribe error = %v", err)
	}
}

func TestNotesFollowSelection(t *testing.T) {
	s := newSession(t)
	_ = s.StartEditing()
	note, err := s.AddNote("Check", "verify ports")
	if err != nil {
		t.Fatalf("AddNote() while editing error = %v", err)
	}
	if _, err := s.ToggleNote(note.ID); err != nil {
		t.Fatalf("ToggleNote() error = %v", err)
	}
	if notes := s.Notes(); len(notes) != 1 || !notes[0].Completed {
		t.Fatalf("unexpected notes %+v", notes)
	}
	if err := s.DeleteNote(note.ID); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
}
