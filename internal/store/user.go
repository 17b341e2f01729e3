package store

import (
	"context"
	"strings"

	"github.com/reverside/timetracker/types"
)

var userColumns = []string{
	"id", "name", "email", "password_hash", "role", "is_active", "created_at", "updated_at",
}

// UserRepository handles persistence for users.
type UserRepository struct {
	table *Table[types.User]
}

func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{
		table: NewTable[types.User](s, "users", userColumns,
			[]string{"name", "email", "password_hash", "role", "is_active"}),
	}
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.table.FindByID(ctx, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.table.FindOne(ctx, Filter{"email": NormalizeEmail(email)})
}

// Create stores user with the password digest already computed.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.Email = NormalizeEmail(user.Email)
	return r.table.Create(ctx, user)
}

func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) (types.User, error) {
	return r.table.Update(ctx, id, Fields{"is_active": active})
}

func (r *UserRepository) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	return r.table.FindAll(ctx, Filter{"role": string(role)}, "name ASC")
}

func (r *UserRepository) ListActive(ctx context.Context) ([]types.User, error) {
	return r.table.FindAll(ctx, Filter{"is_active": true}, "name ASC")
}
