package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	userPrefix     = "user/"
	usernamePrefix = "username/"
	maxTxnRetries  = 5
)

// BadgerStore keeps each user as one whole record, projects included, in an
// embedded key-value store. Every write is a read-modify-replace of that
// record inside a single transaction.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// userRecord is the persisted shape; unlike User it carries the hash.
type userRecord struct {
	ID               string      `json:"id"`
	Username         string      `json:"username"`
	PasswordHash     string      `json:"passwordHash"`
	Role             string      `json:"role"`
	Preferences      Preferences `json:"preferences"`
	CurrentProjectID *string     `json:"currentProjectId"`
	CreatedAt        time.Time   `json:"createdAt"`
	Projects         []Project   `json:"projects"`
}

func (r userRecord) user() User {
	return User{
		ID:               r.ID,
		Username:         r.Username,
		PasswordHash:     r.PasswordHash,
		Role:             r.Role,
		Preferences:      r.Preferences,
		CurrentProjectID: r.CurrentProjectID,
		CreatedAt:        r.CreatedAt,
	}
}

func (r userRecord) list() ProjectList {
	return ProjectList{Projects: append([]Project{}, r.Projects...), CurrentProjectID: r.CurrentProjectID}
}

func (r userRecord) projectIndex(projectID string) int {
	for i, project := range r.Projects {
		if project.ID == projectID {
			return i
		}
	}
	return -1
}

// OpenBadger opens a persistent store under dir, or an in-memory one when dir
// is empty.
func OpenBadger(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now, locks: map[string]*sync.Mutex{}}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func userKey(id string) []byte {
	return []byte(userPrefix + id)
}

func usernameKey(username string) []byte {
	return []byte(usernamePrefix + NormalizeUsername(username))
}

func readUser(txn *badger.Txn, id string) (userRecord, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return userRecord{}, ErrNotFound
	}
	if err != nil {
		return userRecord{}, fmt.Errorf("read user %s: %w", id, err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return userRecord{}, fmt.Errorf("copy user %s: %w", id, err)
	}
	var record userRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return userRecord{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return record, nil
}

func writeUser(txn *badger.Txn, record userRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode user %s: %w", record.ID, err)
	}
	if err := txn.Set(userKey(record.ID), raw); err != nil {
		return fmt.Errorf("write user %s: %w", record.ID, err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts with a
// concurrent writer of the same record.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// mutateUser loads userID, lets fn change it, and writes it back atomically.
// Writers of one record are serialized in-process.
func (s *BadgerStore) mutateUser(ctx context.Context, userID string, fn func(record *userRecord) error) (userRecord, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var out userRecord
	err := s.update(ctx, func(txn *badger.Txn) error {
		record, err := readUser(txn, userID)
		if err != nil {
			return err
		}
		if err := fn(&record); err != nil {
			return err
		}
		out = record
		return writeUser(txn, record)
	})
	return out, err
}

func (s *BadgerStore) viewUser(userID string) (userRecord, error) {
	var record userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = readUser(txn, userID)
		return err
	})
	return record, err
}

func (s *BadgerStore) CreateUser(ctx context.Context, user User) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(user.Username)); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check username: %w", err)
		}
		if err := txn.Set(usernameKey(user.Username), []byte(user.ID)); err != nil {
			return fmt.Errorf("index username: %w", err)
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = s.now()
		}
		return writeUser(txn, userRecord{
			ID:               user.ID,
			Username:         NormalizeUsername(user.Username),
			PasswordHash:     user.PasswordHash,
			Role:             user.Role,
			Preferences:      user.Preferences,
			CurrentProjectID: user.CurrentProjectID,
			CreatedAt:        user.CreatedAt,
			Projects:         []Project{},
		})
	})
}

func (s *BadgerStore) GetUserByID(ctx context.Context, id string) (User, error) {
	record, err := s.viewUser(id)
	if err != nil {
		return User{}, err
	}
	return record.user(), nil
}

func (s *BadgerStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var record userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup username: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy username index: %w", err)
		}
		record, err = readUser(txn, string(id))
		return err
	})
	if err != nil {
		return User{}, err
	}
	return record.user(), nil
}

func (s *BadgerStore) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (User, error) {
	record, err := s.mutateUser(ctx, userID, func(record *userRecord) error {
		if patch.SetCurrentProject && patch.CurrentProjectID != nil && record.projectIndex(*patch.CurrentProjectID) < 0 {
			return ErrNotFound
		}
		if patch.Preferences != nil {
			record.Preferences = *patch.Preferences
		}
		if patch.SetCurrentProject {
			record.CurrentProjectID = patch.CurrentProjectID
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return record.user(), nil
}

func (s *BadgerStore) ListUsers(ctx context.Context) ([]User, error) {
	records, err := s.scanUsers()
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(records))
	for _, record := range records {
		users = append(users, record.user())
	}
	return users, nil
}

func (s *BadgerStore) scanUsers() ([]userRecord, error) {
	var records []userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(userPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy user: %w", err)
			}
			var record userRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				return fmt.Errorf("decode user: %w", err)
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// DeleteUser removes the user record and, with it, every owned project.
func (s *BadgerStore) DeleteUser(ctx context.Context, userID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		record, err := readUser(txn, userID)
		if err != nil {
			return err
		}
		if err := txn.Delete(usernameKey(record.Username)); err != nil {
			return fmt.Errorf("delete username index: %w", err)
		}
		if err := txn.Delete(userKey(userID)); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) CreateProject(ctx context.Context, ownerID string, draft ProjectDraft) (Project, ProjectList, error) {
	project, err := NewProject(ownerID, draft, s.now())
	if err != nil {
		return Project{}, ProjectList{}, err
	}
	record, err := s.mutateUser(ctx, ownerID, func(record *userRecord) error {
		record.Projects = append(record.Projects, project)
		if len(record.Projects) == 1 {
			record.CurrentProjectID = strPtr(project.ID)
		}
		return nil
	})
	if err != nil {
		return Project{}, ProjectList{}, err
	}
	return project, record.list(), nil
}

func (s *BadgerStore) ListProjects(ctx context.Context, ownerID string) (ProjectList, error) {
	record, err := s.viewUser(ownerID)
	if err != nil {
		return ProjectList{}, err
	}
	return record.list(), nil
}

func (s *BadgerStore) GetProject(ctx context.Context, ownerID, projectID string) (Project, error) {
	record, err := s.viewUser(ownerID)
	if err != nil {
		return Project{}, err
	}
	index := record.projectIndex(projectID)
	if index < 0 {
		return Project{}, ErrNotFound
	}
	return record.Projects[index], nil
}

func (s *BadgerStore) ReplaceProject(ctx context.Context, ownerID, projectID string, patch ProjectPatch) (Project, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return Project{}, err
	}
	var updated Project
	_, err = s.mutateUser(ctx, ownerID, func(record *userRecord) error {
		index := record.projectIndex(projectID)
		if index < 0 {
			return ErrNotFound
		}
		record.Projects[index].Apply(patch, s.now())
		updated = record.Projects[index]
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return updated, nil
}

func (s *BadgerStore) DeleteProject(ctx context.Context, ownerID, projectID string) (ProjectList, error) {
	record, err := s.mutateUser(ctx, ownerID, func(record *userRecord) error {
		index := record.projectIndex(projectID)
		if index < 0 {
			return ErrNotFound
		}
		record.Projects = append(record.Projects[:index:index], record.Projects[index+1:]...)
		record.CurrentProjectID = nextSelection(record.CurrentProjectID, projectID, record.Projects)
		return nil
	})
	if err != nil {
		return ProjectList{}, err
	}
	return record.list(), nil
}

func (s *BadgerStore) SelectProject(ctx context.Context, ownerID, projectID string) (Project, error) {
	var selected Project
	_, err := s.mutateUser(ctx, ownerID, func(record *userRecord) error {
		index := record.projectIndex(projectID)
		if index < 0 {
			return ErrNotFound
		}
		record.CurrentProjectID = strPtr(projectID)
		selected = record.Projects[index]
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return selected, nil
}

func (s *BadgerStore) FindProject(ctx context.Context, projectID string) (Project, error) {
	records, err := s.scanUsers()
	if err != nil {
		return Project{}, err
	}
	for _, record := range records {
		if index := record.projectIndex(projectID); index >= 0 {
			return record.Projects[index], nil
		}
	}
	return Project{}, ErrNotFound
}
