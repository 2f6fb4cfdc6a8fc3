package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docshub/api/internal/document"
)

func TestSnapshotHistoryLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	history, err := svc.History("p1", 10)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history before first commit, got %v err=%v", history, err)
	}

	snapshot := document.DefaultSnapshot()
	first, committed, err := svc.CommitSnapshot("p1", snapshot, "alice", "Autosave")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if !committed || first.Hash == "" || first.Author != "alice" || first.Message != "Autosave" {
		t.Fatalf("unexpected first commit %+v committed=%v", first, committed)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "p1", "docs", "overview.md")); err != nil {
		t.Fatalf("expected markdown file for overview: %v", err)
	}

	if _, committed, err := svc.CommitSnapshot("p1", snapshot, "alice", "Autosave"); err != nil || committed {
		t.Fatalf("unchanged snapshot must not commit, committed=%v err=%v", committed, err)
	}

	edited := snapshot.Clone()
	edited.Documents = edited.Documents[:3]
	edited.DocumentContent.Set("overview", document.Content{Title: "Architecture Overview", Content: "# Rewritten"})
	second, committed, err := svc.CommitSnapshot("p1", edited, "alice", "Trim documents")
	if err != nil || !committed {
		t.Fatalf("CommitSnapshot() second error = %v committed=%v", err, committed)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "p1", "docs", "security.md")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected dropped document file removed, stat err = %v", err)
	}

	history, err = svc.History("p1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("unexpected history %+v", history)
	}
	if limited, _ := svc.History("p1", 1); len(limited) != 1 {
		t.Fatalf("expected limit honored, got %d", len(limited))
	}

	old, info, err := svc.SnapshotAt("p1", first.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if info.Hash != first.Hash || len(old.Documents) != len(snapshot.Documents) {
		t.Fatalf("unexpected old snapshot: %d documents, info %+v", len(old.Documents), info)
	}
	current, _, err := svc.SnapshotAt("p1", second.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	content, _ := current.DocumentContent.Get("overview")
	if content.Content != "# Rewritten" || len(current.Documents) != 3 {
		t.Fatalf("unexpected current snapshot %+v", content)
	}
	if current.NoteLists.Len() != snapshot.NoteLists.Len() {
		t.Fatalf("note lists not preserved")
	}

	if _, _, err := svc.SnapshotAt("p1", "deadbee"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory for unknown hash, got %v", err)
	}
	if _, _, err := svc.SnapshotAt("p2", first.Hash); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory for unknown project, got %v", err)
	}

	if err := svc.Remove("p1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if history, _ := svc.History("p1", 0); len(history) != 0 {
		t.Fatalf("expected history gone after Remove")
	}
}

func TestConcurrentCommitsSameProject(t *testing.T) {
	svc := New(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapshot := document.DefaultSnapshot()
			snapshot.DocumentContent.Set("overview", document.Content{Title: "Architecture Overview", Content: fmt.Sprintf("rev %d", i)})
			_, _, err := svc.CommitSnapshot("p1", snapshot, "alice", fmt.Sprintf("rev %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CommitSnapshot() error = %v", err)
		}
	}

	history, err := svc.History("p1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 8 {
		t.Fatalf("expected 8 commits, got %d", len(history))
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"overview":         "overview",
		"release plan-123": "release_plan-123",
		"../escape":        "_escape",
		"..":               "_",
	}
	for in, want := range tests {
		if got := safeName(in); got != want {
			t.Fatalf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDocumentFilesStayDistinct(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	var snapshot document.Snapshot
	for _, id := range []string{"a/b", "a_b", "Guide", "guide"} {
		snapshot.Documents = append(snapshot.Documents, document.Meta{ID: id, Title: id})
		snapshot.DocumentContent.Set(id, document.Content{Title: id, Content: "body of " + id})
	}
	if _, _, err := svc.CommitSnapshot("p1", snapshot, "alice", "Colliding ids"); err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}

	dir := filepath.Join(tempDir, "p1", "docs")
	want := map[string]string{
		pathSegment("a/b") + ".md": "body of a/b",
		"a_b.md":                   "body of a_b",
		"Guide.md":                 "body of Guide",
		"guide-2.md":               "body of guide",
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read docs dir: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(entries))
	}
	for name, body := range want {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != body {
			t.Fatalf("%s holds %q, want %q", name, data, body)
		}
	}
}

func TestPathSegment(t *testing.T) {
	if got := pathSegment("overview"); got != "overview" {
		t.Fatalf("clean id must map to itself, got %q", got)
	}
	lossy := pathSegment("a/b")
	if lossy == "a_b" || !strings.HasPrefix(lossy, "a_b-") {
		t.Fatalf("unexpected segment %q", lossy)
	}
	if lossy != pathSegment("a/b") || lossy == pathSegment("a:b") {
		t.Fatalf("segments must be stable and distinct, got %q and %q", lossy, pathSegment("a:b"))
	}
}
