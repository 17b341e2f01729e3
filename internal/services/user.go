package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/reverside/timetracker/internal/password"
	"github.com/reverside/timetracker/internal/store"
	"github.com/reverside/timetracker/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetActive(ctx context.Context, id int, active bool) (types.User, error)
	ListByRole(ctx context.Context, role types.Role) ([]types.User, error)
	ListActive(ctx context.Context) ([]types.User, error)
}

// NewUser is the input for creating an account.
type NewUser struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     types.Role `json:"role"`
}

const (
	minPasswordLength = 6
	maxPasswordBytes  = 72 // bcrypt rejects longer inputs
)

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	hasher password.Hasher

	dummyOnce   sync.Once
	dummyDigest string
}

func NewUserService(repo UserRepository, hasher password.Hasher) *UserService {
	return &UserService{repo: repo, hasher: hasher}
}

// CreateUser validates input and stores a new active account with a hashed
// password. The role defaults to employee.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (types.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.User{}, invalid("name", "name is required")
	}
	email := store.NormalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return types.User{}, invalid("email", "email is invalid")
	}
	if len(in.Password) < minPasswordLength {
		return types.User{}, invalid("password", "password must be at least %d characters", minPasswordLength)
	}
	if len(in.Password) > maxPasswordBytes {
		return types.User{}, invalid("password", "password must be at most %d bytes", maxPasswordBytes)
	}
	role := in.Role
	if role == "" {
		role = types.RoleEmployee
	}
	if !role.Valid() {
		return types.User{}, invalid("role", "role must be employee or admin")
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, fmt.Errorf("email already registered: %w", ErrConflict)
		}
		return types.User{}, translate("create user", err)
	}
	return user, nil
}

// ValidatePassword returns the user owning email when plaintext matches its
// digest. An unknown email and a wrong password both yield nil, nil.
func (s *UserService) ValidatePassword(ctx context.Context, email, plaintext string) (*types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = s.hasher.Verify(s.dummy(), plaintext)
			return nil, nil
		}
		return nil, translate("get user", err)
	}

	ok, err := s.hasher.Verify(user.PasswordHash, plaintext)
	if err != nil || !ok {
		return nil, nil
	}
	return &user, nil
}

// dummy returns a digest to verify against when the email is unknown, so
// both failure paths pay for one hash comparison.
func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("timetracker-unknown-user")
	})
	return s.dummyDigest
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, translate("get user", err)
	}
	return user, nil
}

// ToggleActive flips the active flag of an employee. Admin accounts are
// reported as not found.
func (s *UserService) ToggleActive(ctx context.Context, id int) (types.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if user.Role != types.RoleEmployee {
		return types.User{}, ErrNotFound
	}

	updated, err := s.repo.SetActive(ctx, id, !user.IsActive)
	if err != nil {
		return types.User{}, translate("set user active", err)
	}
	return updated, nil
}

func (s *UserService) ListEmployees(ctx context.Context) ([]types.User, error) {
	users, err := s.repo.ListByRole(ctx, types.RoleEmployee)
	return users, translate("list employees", err)
}

func (s *UserService) ListAdmins(ctx context.Context) ([]types.User, error) {
	users, err := s.repo.ListByRole(ctx, types.RoleAdmin)
	return users, translate("list admins", err)
}

func (s *UserService) ListActive(ctx context.Context) ([]types.User, error) {
	users, err := s.repo.ListActive(ctx)
	return users, translate("list active users", err)
}
