package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	byEmail    map[string]store.User
	byUsername map[string]store.User
	nextID     int64
	createErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byEmail:    make(map[string]store.User),
		byUsername: make(map[string]store.User),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if user, ok := m.byUsername[username]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	user.ID = m.nextID
	m.byEmail[user.Email] = user
	m.byUsername[user.Username] = user
	return user.ID, nil
}

func validSignUp() SignUpRequest {
	return SignUpRequest{
		Username:  "ada",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Password:  "secret1",
	}
}

func TestSignUp(t *testing.T) {
	svc := NewService(newMockUserStore())

	user, err := svc.SignUp(context.Background(), validSignUp())
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected a numeric id")
	}
	if user.UserID == "" {
		t.Error("expected an external id")
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret1" {
		t.Error("password must be hashed")
	}
	if len(user.Roles) != 1 || user.Roles[0] != "Contributor" {
		t.Errorf("default roles = %v, want [Contributor]", user.Roles)
	}
}

func TestSignUpNormalizesEmail(t *testing.T) {
	svc := NewService(newMockUserStore())

	req := validSignUp()
	req.Email = "  Ada@Example.COM "
	user, err := svc.SignUp(context.Background(), req)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased and trimmed", user.Email)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(newMockUserStore())

	tests := []struct {
		name   string
		mutate func(*SignUpRequest)
	}{
		{"missing email", func(r *SignUpRequest) { r.Email = "" }},
		{"missing password", func(r *SignUpRequest) { r.Password = "" }},
		{"missing first name", func(r *SignUpRequest) { r.FirstName = "" }},
		{"short username", func(r *SignUpRequest) { r.Username = "ab" }},
		{"short password", func(r *SignUpRequest) { r.Password = "12345" }},
		{"bad email", func(r *SignUpRequest) { r.Email = "not-an-email" }},
		{"unknown role", func(r *SignUpRequest) { r.Roles = []string{"Superuser"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSignUp()
			tt.mutate(&req)
			_, err := svc.SignUp(context.Background(), req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSignUpDuplicates(t *testing.T) {
	svc := NewService(newMockUserStore())

	if _, err := svc.SignUp(context.Background(), validSignUp()); err != nil {
		t.Fatalf("first SignUp: %v", err)
	}

	dup := validSignUp()
	dup.Username = "ada2"
	if _, err := svc.SignUp(context.Background(), dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email err = %v, want ErrEmailTaken", err)
	}

	dup = validSignUp()
	dup.Email = "other@example.com"
	if _, err := svc.SignUp(context.Background(), dup); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate username err = %v, want ErrUsernameTaken", err)
	}
}

// A duplicate that slips past the pre-checks surfaces as a unique
// violation on insert; the violated constraint decides the sentinel.
func TestSignUpInsertRacePicksRightSentinel(t *testing.T) {
	cases := []struct {
		name       string
		constraint string
		want       error
	}{
		{name: "username constraint", constraint: "users_user_name_key", want: ErrUsernameTaken},
		{name: "email constraint", constraint: "users_email_key", want: ErrEmailTaken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := newMockUserStore()
			mock.createErr = &pgconn.PgError{Code: "23505", ConstraintName: tc.constraint}
			svc := NewService(mock)

			if _, err := svc.SignUp(context.Background(), validSignUp()); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignIn(t *testing.T) {
	svc := NewService(newMockUserStore())
	if _, err := svc.SignUp(context.Background(), validSignUp()); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	user, err := svc.SignIn(context.Background(), "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.Username != "ada" {
		t.Errorf("username = %q, want ada", user.Username)
	}

	if _, err := svc.SignIn(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.SignIn(context.Background(), "ghost@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}
