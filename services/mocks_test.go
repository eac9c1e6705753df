package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories/memory"
	"github.com/upb/token-auth-api/token"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	args := m.Called(ctx, identifier)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

var testSecret = []byte("services-test-secret-0123456789abcdef")

// fixture wires the services on top of an in-memory store holding alice (ADMIN, USER),
// bob (USER) and the disabled account carol.
type fixture struct {
	users  *memory.UserRepository
	hasher *BcryptHasher
	tokens *token.Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:  memory.NewUserRepository(),
		hasher: NewBcryptHasher(bcrypt.MinCost),
		now:    time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}

	cfg := token.Config{
		Secret:       testSecret,
		Issuer:       "token-auth-api",
		TTL:          time.Hour,
		RefreshLimit: 1,
	}
	clock := func() time.Time { return f.now }
	tokens, err := token.NewService(cfg, token.WithClock(clock), token.WithRevocations(token.NewMemoryRevocationsWithClock(clock)))
	require.NoError(t, err)
	f.tokens = tokens

	f.addUser(t, "alice", "alice@example.com", "wonderland", true, models.AuthorityAdmin, models.AuthorityUser)
	f.addUser(t, "bob", "bob@example.com", "builder", true, models.AuthorityUser)
	f.addUser(t, "carol", "carol@example.com", "disabled", false, models.AuthorityUser)
	return f
}

func (f *fixture) addUser(t *testing.T, username, email, password string, active bool, authorities ...models.Authority) *models.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	user := models.NewUser(username, email, hash, authorities...)
	user.Active = active
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}
