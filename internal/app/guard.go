package app

import (
	"context"
	"errors"
	"fmt"

	"docshub/api/internal/auth"
	"docshub/api/internal/rbac"
	"docshub/api/internal/store"
)

// SessionFromToken resolves a bearer token to the caller. The role comes
// from the stored user so a demotion or deletion takes effect immediately.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, auth.ErrInvalidToken
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session user: %w", err)
	}
	session := Session{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(rbac.Normalize(user.Role)),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// AuthorizeOwner answers 403 unless the caller owns ownerID's records or is
// an admin.
func (s *Service) AuthorizeOwner(session Session, ownerID string) error {
	if err := s.requireUser(session); err != nil {
		return err
	}
	if session.UserID == ownerID || s.Can(session.Role, rbac.ActionAdmin) {
		return nil
	}
	return forbidden("Access denied")
}

func (s *Service) requireUser(session Session) error {
	if session.UserID == "" {
		return unauthorized("Authentication required")
	}
	if !s.Can(session.Role, rbac.ActionOwn) {
		return forbidden("Access denied")
	}
	return nil
}

func (s *Service) requireAdmin(session Session) error {
	if session.UserID == "" {
		return unauthorized("Authentication required")
	}
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return forbidden("Access denied. Admin only.")
	}
	return nil
}

// loadProject fetches one of the caller's own projects. Projects of other
// owners are reported as missing.
func (s *Service) loadProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	if err := s.requireUser(session); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.GetProject(ctx, session.UserID, projectID)
	if err != nil {
		return store.Project{}, storeError(err, "Project not found")
	}
	if err := s.AuthorizeOwner(session, project.OwnerID); err != nil {
		return store.Project{}, err
	}
	return project, nil
}
