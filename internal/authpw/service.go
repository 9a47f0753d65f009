// Package authpw provides email/password account creation and sign-in.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password so a caller cannot probe which emails are registered.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
)

// ValidationError marks a sign-up request the caller can fix.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) (int64, error)
}

// NewService creates a new auth service
func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Username    string
	FirstName   string
	LastName    string
	Email       string
	Password    string
	Phone       []string
	Institution string
	Roles       []string
}

// SignUp creates a new user account. Emails are stored lowercased; the
// role list defaults to Contributor when the request carries none.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Username == "" || req.FirstName == "" || req.LastName == "" || req.Email == "" || req.Password == "" {
		return store.User{}, invalid("user_name, first_name, last_name, email, and password are required")
	}
	if len(req.Username) < 3 {
		return store.User{}, invalid("user_name must be at least 3 characters")
	}
	if len(req.Password) < 6 {
		return store.User{}, invalid("password must be at least 6 characters")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return store.User{}, invalid("email is not valid")
	}

	var roles rbac.RoleSet
	if len(req.Roles) == 0 {
		roles = rbac.DefaultRoles()
	} else {
		parsed, err := rbac.ParseRoles(req.Roles)
		if err != nil {
			return store.User{}, invalid("%s", err.Error())
		}
		roles = parsed
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("check email: %w", err)
	}
	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return store.User{}, ErrUsernameTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("check username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		UserID:       util.NewID("USER"),
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Phone:        req.Phone,
		Institution:  req.Institution,
		Roles:        roles.Names(),
	}

	id, err := s.store.CreateUser(ctx, user)
	if err != nil {
		// Races between the pre-checks and the insert still surface as
		// a unique violation; the constraint name tells which field
		// collided.
		if store.IsUniqueViolation(err) {
			if strings.Contains(store.UniqueConstraint(err), "user_name") {
				return store.User{}, ErrUsernameTaken
			}
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	return user, nil
}

// SignIn authenticates a user by email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return store.User{}, invalid("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
