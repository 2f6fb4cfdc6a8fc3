package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"docshub/api/internal/document"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, username, password_hash, role, dark_mode, selected_doc, current_project_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		user    User
		current sql.NullString
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role,
		&user.Preferences.DarkMode, &user.Preferences.SelectedDoc, &current, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if current.Valid {
		user.CurrentProjectID = strPtr(current.String)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, dark_mode, selected_doc, current_project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, NormalizeUsername(user.Username), user.PasswordHash, user.Role,
		user.Preferences.DarkMode, user.Preferences.SelectedDoc, nullString(user.CurrentProjectID), user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, err
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username)=$1`, NormalizeUsername(username)))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("get user by username: %w", err)
	}
	return user, err
}

func (s *PostgresStore) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, fmt.Errorf("begin preferences tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, userID))
	if err != nil {
		return User{}, err
	}
	if patch.SetCurrentProject && patch.CurrentProjectID != nil {
		var owned bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM projects WHERE id=$1 AND owner_id=$2)`,
			*patch.CurrentProjectID, userID).Scan(&owned); err != nil {
			return User{}, fmt.Errorf("check project ownership: %w", err)
		}
		if !owned {
			return User{}, ErrNotFound
		}
	}
	if patch.Preferences != nil {
		user.Preferences = *patch.Preferences
	}
	if patch.SetCurrentProject {
		user.CurrentProjectID = patch.CurrentProjectID
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET dark_mode=$2, selected_doc=$3, current_project_id=$4 WHERE id=$1
	`, userID, user.Preferences.DarkMode, user.Preferences.SelectedDoc, nullString(user.CurrentProjectID)); err != nil {
		return User{}, fmt.Errorf("update preferences: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return User{}, fmt.Errorf("commit preferences: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// DeleteUser relies on the owner foreign key to cascade to projects.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(result)
}

const projectColumns = `id, owner_id, name, description, icon, color, documents, document_content, todo_lists, created_at, updated_at`

func scanProject(row rowScanner) (Project, error) {
	var (
		project                         Project
		icon                            string
		documents, content, noteListsJS []byte
	)
	err := row.Scan(&project.ID, &project.OwnerID, &project.Name, &project.Description, &icon, &project.Color,
		&documents, &content, &noteListsJS, &project.CreatedAt, &project.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	project.Icon = document.Icon(icon)
	if err := json.Unmarshal(documents, &project.Documents); err != nil {
		return Project{}, fmt.Errorf("decode documents: %w", err)
	}
	if project.Documents == nil {
		project.Documents = []document.Meta{}
	}
	if err := json.Unmarshal(content, &project.DocumentContent); err != nil {
		return Project{}, fmt.Errorf("decode document content: %w", err)
	}
	if err := json.Unmarshal(noteListsJS, &project.NoteLists); err != nil {
		return Project{}, fmt.Errorf("decode todo lists: %w", err)
	}
	return project, nil
}

func (s *PostgresStore) listProjects(ctx context.Context, q querier, ownerID string) ([]Project, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE owner_id=$1
		ORDER BY seq ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentProject(ctx context.Context, q querier, ownerID string) (*string, error) {
	var current sql.NullString
	err := q.QueryRowContext(ctx, `SELECT current_project_id FROM users WHERE id=$1`, ownerID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read current project: %w", err)
	}
	if !current.Valid {
		return nil, nil
	}
	return strPtr(current.String), nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, ownerID string, draft ProjectDraft) (Project, ProjectList, error) {
	project, err := NewProject(ownerID, draft, s.now())
	if err != nil {
		return Project{}, ProjectList{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, ProjectList{}, fmt.Errorf("begin create project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentProject(ctx, tx, ownerID)
	if err != nil {
		return Project{}, ProjectList{}, err
	}

	documents, content, noteLists, err := encodeCollections(project.Documents, project.DocumentContent, project.NoteLists)
	if err != nil {
		return Project{}, ProjectList{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, name, description, icon, color, documents, document_content, todo_lists, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10, $10)
	`, project.ID, ownerID, project.Name, project.Description, string(project.Icon), project.Color,
		documents, content, noteLists, project.CreatedAt); err != nil {
		return Project{}, ProjectList{}, fmt.Errorf("insert project: %w", err)
	}

	projects, err := s.listProjects(ctx, tx, ownerID)
	if err != nil {
		return Project{}, ProjectList{}, err
	}
	if len(projects) == 1 {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET current_project_id=$2 WHERE id=$1`, ownerID, project.ID); err != nil {
			return Project{}, ProjectList{}, fmt.Errorf("select first project: %w", err)
		}
		current = strPtr(project.ID)
	}
	if err := tx.Commit(); err != nil {
		return Project{}, ProjectList{}, fmt.Errorf("commit create project: %w", err)
	}
	return project, ProjectList{Projects: projects, CurrentProjectID: current}, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, ownerID string) (ProjectList, error) {
	current, err := currentProject(ctx, s.db, ownerID)
	if err != nil {
		return ProjectList{}, err
	}
	projects, err := s.listProjects(ctx, s.db, ownerID)
	if err != nil {
		return ProjectList{}, err
	}
	return ProjectList{Projects: projects, CurrentProjectID: current}, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, ownerID, projectID string) (Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1 AND owner_id=$2`, projectID, ownerID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, err
}

// ReplaceProject writes only the columns the patch carries.
func (s *PostgresStore) ReplaceProject(ctx context.Context, ownerID, projectID string, patch ProjectPatch) (Project, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return Project{}, err
	}

	sets := []string{"updated_at=$3"}
	args := []any{projectID, ownerID, s.now()}
	add := func(column string, value any, cast string) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d%s", column, len(args), cast))
	}
	if patch.Name != nil {
		add("name", *patch.Name, "")
	}
	if patch.Description != nil {
		add("description", *patch.Description, "")
	}
	if patch.Icon != nil {
		add("icon", *patch.Icon, "")
	}
	if patch.Color != nil {
		add("color", *patch.Color, "")
	}
	if patch.Documents != nil {
		raw, err := json.Marshal(*patch.Documents)
		if err != nil {
			return Project{}, fmt.Errorf("encode documents: %w", err)
		}
		add("documents", string(raw), "::jsonb")
	}
	if patch.DocumentContent != nil {
		raw, err := json.Marshal(*patch.DocumentContent)
		if err != nil {
			return Project{}, fmt.Errorf("encode document content: %w", err)
		}
		add("document_content", string(raw), "::jsonb")
	}
	if patch.NoteLists != nil {
		raw, err := json.Marshal(*patch.NoteLists)
		if err != nil {
			return Project{}, fmt.Errorf("encode todo lists: %w", err)
		}
		add("todo_lists", string(raw), "::jsonb")
	}

	query := `UPDATE projects SET ` + strings.Join(sets, ", ") +
		` WHERE id=$1 AND owner_id=$2 RETURNING ` + projectColumns
	project, err := scanProject(s.db.QueryRowContext(ctx, query, args...))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Project{}, fmt.Errorf("replace project: %w", err)
	}
	return project, err
}

func (s *PostgresStore) DeleteProject(ctx context.Context, ownerID, projectID string) (ProjectList, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ProjectList{}, fmt.Errorf("begin delete project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := currentProject(ctx, tx, ownerID)
	if err != nil {
		return ProjectList{}, err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=$1 AND owner_id=$2`, projectID, ownerID)
	if err != nil {
		return ProjectList{}, fmt.Errorf("delete project: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return ProjectList{}, err
	}

	remaining, err := s.listProjects(ctx, tx, ownerID)
	if err != nil {
		return ProjectList{}, err
	}
	next := nextSelection(current, projectID, remaining)
	if _, err := tx.ExecContext(ctx, `UPDATE users SET current_project_id=$2 WHERE id=$1`, ownerID, nullString(next)); err != nil {
		return ProjectList{}, fmt.Errorf("reassign current project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ProjectList{}, fmt.Errorf("commit delete project: %w", err)
	}
	return ProjectList{Projects: remaining, CurrentProjectID: next}, nil
}

func (s *PostgresStore) SelectProject(ctx context.Context, ownerID, projectID string) (Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, fmt.Errorf("begin select project tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	project, err := scanProject(tx.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1 AND owner_id=$2`, projectID, ownerID))
	if err != nil {
		return Project{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET current_project_id=$2 WHERE id=$1`, ownerID, projectID); err != nil {
		return Project{}, fmt.Errorf("select project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Project{}, fmt.Errorf("commit select project: %w", err)
	}
	return project, nil
}

func (s *PostgresStore) FindProject(ctx context.Context, projectID string) (Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1`, projectID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Project{}, fmt.Errorf("find project: %w", err)
	}
	return project, err
}

func encodeCollections(documents []document.Meta, content document.ContentMap, noteLists document.NoteLists) (string, string, string, error) {
	docsRaw, err := json.Marshal(documents)
	if err != nil {
		return "", "", "", fmt.Errorf("encode documents: %w", err)
	}
	contentRaw, err := json.Marshal(content)
	if err != nil {
		return "", "", "", fmt.Errorf("encode document content: %w", err)
	}
	notesRaw, err := json.Marshal(noteLists)
	if err != nil {
		return "", "", "", fmt.Errorf("encode todo lists: %w", err)
	}
	return string(docsRaw), string(contentRaw), string(notesRaw), nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
