package document

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	at := time.UnixMilli(1700000000000)
	return func() time.Time { return at }
}

func TestNewCollectionSeedsBuiltInsWhenEmpty(t *testing.T) {
	c := NewCollection(Snapshot{})
	docs := c.Documents()
	if len(docs) != len(BuiltInIDs()) {
		t.Fatalf("expected %d built-in documents, got %d", len(BuiltInIDs()), len(docs))
	}
	if docs[1].ID != "overview" || docs[1].Category != CategoryArchitecture {
		t.Fatalf("unexpected second document: %+v", docs[1])
	}
	content, ok := c.Content("overview")
	if !ok || !strings.HasPrefix(content.Content, "# Architecture Overview") {
		t.Fatalf("expected seeded overview content, got %+v ok=%v", content, ok)
	}
}

func TestNewCollectionKeepsPersistedDocuments(t *testing.T) {
	var snapshot Snapshot
	snapshot.Documents = []Meta{{ID: "notes-1", Title: "Notes", Icon: IconFileText, Category: CategoryCustom}}
	snapshot.DocumentContent.Set("notes-1", Content{Title: "Notes", Content: "hello"})

	c := NewCollection(snapshot)
	if got := c.Documents(); len(got) != 1 || got[0].ID != "notes-1" {
		t.Fatalf("unexpected documents: %+v", got)
	}
	content, _ := c.Content("notes-1")
	if content.Content != "hello" {
		t.Fatalf("unexpected content: %+v", content)
	}
}

func TestAddDocument(t *testing.T) {
	c := NewCollection(Snapshot{}, WithClock(fixedClock()))
	mutations := 0
	c.Observe(func() { mutations++ })

	meta, err := c.AddDocument("  Release Plan  ", CategoryGuides)
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if meta.ID != "release-plan-1700000000000" {
		t.Fatalf("unexpected id %q", meta.ID)
	}
	if meta.Icon != IconFileText || meta.Category != CategoryGuides {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	content, ok := c.Content(meta.ID)
	if !ok || content.Content != "# Release Plan\n\nWrite your documentation here..." {
		t.Fatalf("unexpected placeholder: %+v", content)
	}

	second, err := c.AddDocument("Release Plan", CategoryGuides)
	if err != nil {
		t.Fatalf("AddDocument() second error = %v", err)
	}
	if second.ID == meta.ID {
		t.Fatal("expected distinct ids for documents created in the same millisecond")
	}
	if mutations != 2 {
		t.Fatalf("expected 2 observed mutations, got %d", mutations)
	}
}

func TestAddDocumentRejectsBlankTitle(t *testing.T) {
	c := NewCollection(Snapshot{})
	_, err := c.AddDocument("   ", CategoryCustom)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	t.Run("built-in is rejected", func(t *testing.T) {
		c := NewCollection(Snapshot{})
		for _, id := range BuiltInIDs() {
			if _, err := c.DeleteDocument(id); !errors.Is(err, ErrBuiltInDocument) {
				t.Fatalf("DeleteDocument(%q) error = %v, want ErrBuiltInDocument", id, err)
			}
		}
		if len(c.Documents()) != len(BuiltInIDs()) {
			t.Fatal("built-in documents must remain")
		}
	})

	t.Run("custom removes metadata and content and selects first remaining", func(t *testing.T) {
		var snapshot Snapshot
		snapshot.Documents = []Meta{
			{ID: "overview", Title: "Architecture Overview", Icon: IconLayers, Category: CategoryArchitecture},
			{ID: "b-1", Title: "B", Icon: IconFileText, Category: CategoryCustom},
		}
		snapshot.DocumentContent.Set("b-1", Content{Title: "B", Content: "b"})
		c := NewCollection(snapshot)

		next, err := c.DeleteDocument("b-1")
		if err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}
		if next != "overview" {
			t.Fatalf("expected next selection overview, got %q", next)
		}
		if _, ok := c.Document("b-1"); ok {
			t.Fatal("metadata should be gone")
		}
		if _, ok := c.Content("b-1"); ok {
			t.Fatal("content should be gone")
		}
	})

	t.Run("last custom document falls back", func(t *testing.T) {
		var snapshot Snapshot
		snapshot.Documents = []Meta{{ID: "b-1", Title: "B", Icon: IconFileText, Category: CategoryCustom}}
		c := NewCollection(snapshot)

		next, err := c.DeleteDocument("b-1")
		if err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}
		if next != FallbackDocumentID {
			t.Fatalf("expected fallback %q, got %q", FallbackDocumentID, next)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		c := NewCollection(Snapshot{})
		if _, err := c.DeleteDocument("missing-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSetContentPreservesTitle(t *testing.T) {
	c := NewCollection(Snapshot{})
	if err := c.SetContent("apis", "# APIs\n\nv2"); err != nil {
		t.Fatalf("SetContent() error = %v", err)
	}
	content, _ := c.Content("apis")
	if content.Title != "APIs" || content.Content != "# APIs\n\nv2" {
		t.Fatalf("unexpected content: %+v", content)
	}
	if err := c.SetContent("nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotes(t *testing.T) {
	c := NewCollection(Snapshot{})

	if _, err := c.AddNote("overview", " ", "body"); !errors.Is(err, ErrNoteTitle) {
		t.Fatalf("expected ErrNoteTitle, got %v", err)
	}

	fifty := strings.TrimSpace(strings.Repeat("word ", 50))
	note, err := c.AddNote("overview", "Limit", fifty)
	if err != nil {
		t.Fatalf("50 words should be accepted: %v", err)
	}
	if !note.IsCustom || note.Completed {
		t.Fatalf("unexpected note flags: %+v", note)
	}
	if _, err := c.AddNote("overview", "Too long", fifty+" extra"); !errors.Is(err, ErrNoteTooLong) {
		t.Fatalf("expected ErrNoteTooLong, got %v", err)
	}

	toggled, err := c.ToggleNote("overview", note.ID)
	if err != nil || !toggled.Completed {
		t.Fatalf("ToggleNote() = %+v, %v", toggled, err)
	}
	toggled, _ = c.ToggleNote("overview", note.ID)
	if toggled.Completed {
		t.Fatal("second toggle should clear completion")
	}

	if err := c.DeleteNote("overview", note.ID); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	if got := c.Notes("overview"); len(got) != 0 {
		t.Fatalf("expected no notes, got %+v", got)
	}
}

func TestDeleteBuiltInNoteIsRejected(t *testing.T) {
	var snapshot Snapshot
	snapshot.NoteLists.Set("overview", []Note{{ID: "seed", Title: "Checklist", IsCustom: false}})
	c := NewCollection(snapshot)

	if err := c.DeleteNote("overview", "seed"); !errors.Is(err, ErrBuiltInNote) {
		t.Fatalf("expected ErrBuiltInNote, got %v", err)
	}
	if got := c.Notes("overview"); len(got) != 1 {
		t.Fatalf("built-in note must remain, got %+v", got)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := NewCollection(Snapshot{})
	note, _ := c.AddNote("apis", "n", "c")
	snapshot := c.Snapshot()

	if _, err := c.ToggleNote("apis", note.ID); err != nil {
		t.Fatalf("ToggleNote() error = %v", err)
	}
	notes, _ := snapshot.NoteLists.Get("apis")
	if notes[0].Completed {
		t.Fatal("snapshot must not observe later mutations")
	}
}

func TestSearch(t *testing.T) {
	c := NewCollection(Snapshot{})
	got := c.Search("devops")
	if len(got) != 2 {
		t.Fatalf("expected 2 DevOps documents, got %+v", got)
	}
	if categories := GroupCategories(c.Search("")); categories[0] != CategoryProduct {
		t.Fatalf("unexpected category order: %v", categories)
	}
}
