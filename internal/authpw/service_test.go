package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docshub/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users   map[string]store.User // username -> user
	lookups int
	failGet error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	m.lookups++
	if m.failGet != nil {
		return store.User{}, m.failGet
	}
	if user, ok := m.users[strings.ToLower(username)]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	key := strings.ToLower(user.Username)
	if _, ok := m.users[key]; ok {
		return store.ErrUsernameTaken
	}
	m.users[key] = user
	return nil
}

func TestSignUpAssignsRoles(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()

	admin, err := svc.SignUp(ctx, Credentials{Username: "Admin", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp(Admin) error = %v", err)
	}
	if admin.Role != "admin" || admin.Username != "admin" {
		t.Fatalf("expected admin role and lowercased name, got %+v", admin)
	}

	user, err := svc.SignUp(ctx, Credentials{Username: "  Carol ", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp(Carol) error = %v", err)
	}
	if user.Role != "user" || user.Username != "carol" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret1" {
		t.Fatal("password must be stored hashed")
	}
	if user.Preferences.SelectedDoc != "overview" || user.Preferences.DarkMode || user.CurrentProjectID != nil {
		t.Fatalf("unexpected initial preferences: %+v", user)
	}
}

func TestSignUpRejectsDuplicateIgnoringCase(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, Credentials{Username: "dave", Password: "secret1"}); err != nil {
		t.Fatalf("first SignUp() error = %v", err)
	}
	_, err := svc.SignUp(ctx, Credentials{Username: "DAVE", Password: "another"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		field   string
		message string
	}{
		{"missing", Credentials{}, "", "Username and password are required"},
		{"short username", Credentials{Username: "ab", Password: "secret1"}, "username", "Username must be at least 3 characters"},
		{"short password", Credentials{Username: "erin", Password: "12345"}, "password", "Password must be at least 6 characters"},
		{"blank username", Credentials{Username: "   ", Password: "secret1"}, "", "Username and password are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockUserStore())
			_, err := svc.SignUp(context.Background(), tt.creds)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field || verr.Message != tt.message {
				t.Fatalf("got field=%q message=%q", verr.Field, verr.Message)
			}
			if !IsValidationError(err) {
				t.Fatal("IsValidationError() = false")
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	svc := NewService(newMockUserStore())
	ctx := context.Background()
	created, err := svc.SignUp(ctx, Credentials{Username: "frank", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	user, err := svc.SignIn(ctx, Credentials{Username: "FRANK", Password: "secret1"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, user.ID)
	}

	if _, err := svc.SignIn(ctx, Credentials{Username: "frank", Password: "wrong!!"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, Credentials{Username: "nobody", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUsernameAvailable(t *testing.T) {
	mock := newMockUserStore()
	svc := NewService(mock)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, Credentials{Username: "grace", Password: "secret1"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	available, err := svc.UsernameAvailable(ctx, "GRACE")
	if err != nil || available {
		t.Fatalf("expected taken, got available=%v err=%v", available, err)
	}
	available, err = svc.UsernameAvailable(ctx, "heidi")
	if err != nil || !available {
		t.Fatalf("expected available, got available=%v err=%v", available, err)
	}

	mock.failGet = errors.New("store down")
	if _, err := svc.UsernameAvailable(ctx, "ivan"); err == nil || IsValidationError(err) {
		t.Fatalf("expected store error, got %v", err)
	}
}
