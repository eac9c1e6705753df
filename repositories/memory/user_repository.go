// Package memory provides in-process repository implementations used when no
// database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories"
)

// UserRepository is a concurrency-safe in-memory repositories.UserRepository
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

// NewUserRepository creates an empty in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[uuid.UUID]*models.User),
	}
}

// FindByUsername retrieves a user by exact username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Username == username {
			return clone(u), nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

// FindByUsernameOrEmail retrieves a user by exact username, then by case-insensitive email
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var byEmail *models.User
	email := strings.ToLower(identifier)
	for _, u := range r.users {
		if u.Username == identifier {
			return clone(u), nil
		}
		if u.Email == email {
			byEmail = u
		}
	}
	if byEmail == nil {
		return nil, repositories.ErrUserNotFound
	}
	return clone(byEmail), nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return clone(u), nil
}

// List retrieves users ordered by username
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	all := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		all = append(all, clone(u))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	if offset >= len(all) {
		return []*models.User{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Create stores a new user. Usernames and emails share one namespace, so a
// username may not equal any stored email and the reverse.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	username := strings.ToLower(user.Username)
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == email ||
			u.Email == username || strings.ToLower(u.Username) == email {
			return fmt.Errorf("%w: %s", repositories.ErrDuplicateUser, user.Username)
		}
	}

	stored := clone(user)
	stored.Email = email
	r.users[stored.ID] = stored
	return nil
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

// SetActive enables or disables a user account
func (r *UserRepository) SetActive(id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Active = active
	return nil
}

func clone(u *models.User) *models.User {
	c := *u
	c.Authorities = append([]models.Authority(nil), u.Authorities...)
	return &c
}
