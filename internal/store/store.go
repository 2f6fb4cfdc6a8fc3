package store

import "context"

// Store is the durable owner of users and their projects. Every project
// operation except FindProject is scoped to ownerID and answers ErrNotFound
// for projects the owner does not hold.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, userID string) error

	CreateProject(ctx context.Context, ownerID string, draft ProjectDraft) (Project, ProjectList, error)
	ListProjects(ctx context.Context, ownerID string) (ProjectList, error)
	GetProject(ctx context.Context, ownerID, projectID string) (Project, error)
	ReplaceProject(ctx context.Context, ownerID, projectID string, patch ProjectPatch) (Project, error)
	DeleteProject(ctx context.Context, ownerID, projectID string) (ProjectList, error)
	SelectProject(ctx context.Context, ownerID, projectID string) (Project, error)
	// FindProject looks a project up by id across all owners.
	FindProject(ctx context.Context, projectID string) (Project, error)

	Ping(ctx context.Context) error
	Close() error
}
