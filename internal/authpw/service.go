// Package authpw provides username/password accounts on top of the user store.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"docshub/api/internal/rbac"
	"docshub/api/internal/store"
	"docshub/api/internal/util"
)

// PasswordCost is the bcrypt work factor for stored credentials.
const PasswordCost = 10

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = store.ErrUsernameTaken
)

// ValidationError reports rejected input with a message fit for display.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var validate = validator.New()

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

// Service provides username/password authentication
type Service struct {
	store UserStore
	now   func() time.Time
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Credentials is the sign-up and sign-in input.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (c Credentials) normalized() Credentials {
	return Credentials{Username: store.NormalizeUsername(c.Username), Password: c.Password}
}

func (c Credentials) validate() error {
	if c.Username == "" || c.Password == "" {
		return &ValidationError{Message: "Username and password are required"}
	}
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate credentials: %w", err)
	}
	first := fieldErrs[0]
	switch first.Field() {
	case "Username":
		if first.Tag() == "max" {
			return &ValidationError{Field: "username", Message: "Username must be at most 64 characters"}
		}
		return &ValidationError{Field: "username", Message: "Username must be at least 3 characters"}
	default:
		if first.Tag() == "max" {
			return &ValidationError{Field: "password", Message: "Password must be at most 72 characters"}
		}
		return &ValidationError{Field: "password", Message: "Password must be at least 6 characters"}
	}
}

// SignUp creates a new user account. The reserved admin username, in any
// case, signs up with the admin role.
func (s *Service) SignUp(ctx context.Context, creds Credentials) (store.User, error) {
	creds = creds.normalized()
	if err := creds.validate(); err != nil {
		return store.User{}, err
	}

	if _, err := s.store.GetUserByUsername(ctx, creds.Username); err == nil {
		return store.User{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, fmt.Errorf("lookup username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), PasswordCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID(""),
		Username:     creds.Username,
		PasswordHash: string(hash),
		Role:         string(rbac.RoleForUsername(creds.Username)),
		Preferences:  store.DefaultPreferences(),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn authenticates a user. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (store.User, error) {
	creds = creds.normalized()
	if creds.Username == "" || creds.Password == "" {
		return store.User{}, &ValidationError{Message: "Username and password are required"}
	}

	user, err := s.store.GetUserByUsername(ctx, creds.Username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UsernameAvailable reports whether username is free, ignoring case.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = store.NormalizeUsername(username)
	if username == "" {
		return false, &ValidationError{Field: "username", Message: "Username is required"}
	}
	_, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("lookup username: %w", err)
	default:
		return false, nil
	}
}

// IsValidationError reports whether err carries a display message for input.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
