// Package gitrepo keeps a git history of every persisted project snapshot.
package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"docshub/api/internal/document"
	"docshub/api/internal/store"
)

const (
	documentsFile = "documents.json"
	contentFile   = "content.json"
	notesFile     = "notes.json"
	docsDir       = "docs"
)

var ErrNoHistory = errors.New("no history")

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// CommitSnapshot writes snapshot into the project's repository and commits
// it. It reports false without committing when nothing changed.
func (s *Service) CommitSnapshot(projectID string, snapshot document.Snapshot, author, message string) (store.CommitInfo, bool, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(projectID)
	if err != nil {
		return store.CommitInfo{}, false, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	files, err := snapshotFiles(snapshot)
	if err != nil {
		return store.CommitInfo{}, false, err
	}
	if err := removeStaleDocs(worktree, root, files); err != nil {
		return store.CommitInfo{}, false, err
	}
	if err := os.MkdirAll(filepath.Join(root, docsDir), 0o755); err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("create docs dir: %w", err)
	}
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := os.WriteFile(filepath.Join(root, filepath.FromSlash(path)), files[path], 0o644); err != nil {
			return store.CommitInfo{}, false, fmt.Errorf("write %s: %w", path, err)
		}
		if _, err := worktree.Add(path); err != nil {
			return store.CommitInfo{}, false, fmt.Errorf("git add %s: %w", path, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return store.CommitInfo{}, false, nil
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@docshub.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// History lists the project's commits newest first. A project that was
// never committed has an empty history.
func (s *Service) History(projectID string, limit int) ([]store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	items := make([]store.CommitInfo, 0)
	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads the collections as of a full or abbreviated commit hash.
func (s *Service) SnapshotAt(projectID, hash string) (document.Snapshot, store.CommitInfo, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(projectID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return document.Snapshot{}, store.CommitInfo{}, ErrNoHistory
	}
	if err != nil {
		return document.Snapshot{}, store.CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return document.Snapshot{}, store.CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return document.Snapshot{}, store.CommitInfo{}, fmt.Errorf("%w: read commit %s: %v", ErrNoHistory, hash, err)
	}

	var snapshot document.Snapshot
	if err := readJSON(commitObj, documentsFile, &snapshot.Documents); err != nil {
		return document.Snapshot{}, store.CommitInfo{}, err
	}
	if err := readJSON(commitObj, contentFile, &snapshot.DocumentContent); err != nil {
		return document.Snapshot{}, store.CommitInfo{}, err
	}
	if err := readJSON(commitObj, notesFile, &snapshot.NoteLists); err != nil {
		return document.Snapshot{}, store.CommitInfo{}, err
	}
	return snapshot, toCommitInfo(commitObj), nil
}

// Remove deletes the project's repository.
func (s *Service) Remove(projectID string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(projectID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(projectID string) (*git.Repository, error) {
	path := s.repoPath(projectID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(projectID string) string {
	return filepath.Join(s.baseDir, pathSegment(projectID))
}

func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[projectID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[projectID] = lock
	return lock
}

// snapshotFiles renders the tree for one snapshot, keyed by slash path: the
// three collections as JSON plus one markdown file per listed document.
func snapshotFiles(snapshot document.Snapshot) (map[string][]byte, error) {
	files := make(map[string][]byte)
	for name, value := range map[string]any{
		documentsFile: snapshot.Documents,
		contentFile:   snapshot.DocumentContent,
		notesFile:     snapshot.NoteLists,
	} {
		payload, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		files[name] = append(payload, '\n')
	}
	used := make(map[string]bool, len(snapshot.Documents))
	for _, meta := range snapshot.Documents {
		content, _ := snapshot.DocumentContent.Get(meta.ID)
		name := pathSegment(meta.ID)
		// Names must stay distinct on case-insensitive filesystems too.
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s-%d", pathSegment(meta.ID), n)
		}
		used[strings.ToLower(name)] = true
		files[docsDir+"/"+name+".md"] = []byte(content.Content)
	}
	return files, nil
}

func removeStaleDocs(worktree *git.Worktree, root string, keep map[string][]byte) error {
	entries, err := os.ReadDir(filepath.Join(root, docsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read docs dir: %w", err)
	}
	for _, entry := range entries {
		path := docsDir + "/" + entry.Name()
		if _, ok := keep[path]; entry.IsDir() || ok {
			continue
		}
		if _, err := worktree.Remove(path); err != nil {
			return fmt.Errorf("git rm %s: %w", path, err)
		}
	}
	return nil
}

func readJSON(commitObj *object.Commit, name string, target any) error {
	file, err := commitObj.File(name)
	if err != nil {
		return fmt.Errorf("load %s from commit: %w", name, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(contents), target); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	bytes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			bytes = append(bytes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			bytes = append(bytes, '.')
		}
	}
	if len(bytes) == 0 {
		return "user"
	}
	return string(bytes)
}

// pathSegment is safeName, suffixed with a short hash of id whenever
// sanitizing changed it, so distinct ids keep distinct names.
func pathSegment(id string) string {
	name := safeName(id)
	if name == id {
		return name
	}
	sum := sha256.Sum256([]byte(id))
	return name + "-" + hex.EncodeToString(sum[:4])
}

// safeName maps an id onto a single path segment.
func safeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "_"
	}
	return name
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: resolve hash %s: %v", ErrNoHistory, hash, err)
	}
	return *resolved, nil
}
