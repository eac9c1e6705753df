package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/token-auth-api/models"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser is returned when the username or email is already taken
	ErrDuplicateUser = errors.New("username or email already exists")
)

// TransactionManager runs a unit of work inside a database transaction
type TransactionManager interface {
	// InTransaction runs fn with a context carrying the transaction. It commits when
	// fn returns nil and rolls back otherwise. A nested call joins the outer transaction.
	// name labels the unit of work in logs.
	InTransaction(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// UserRepository handles user lookup and persistence
type UserRepository interface {
	// FindByUsername retrieves a user by exact username.
	// Returns ErrUserNotFound when there is no such user.
	FindByUsername(ctx context.Context, username string) (*models.User, error)

	// FindByUsernameOrEmail retrieves a user whose username or email matches the identifier,
	// preferring the username match. Only login accepts an email.
	FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error)

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// List retrieves users ordered by username with pagination
	List(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Create creates a new user together with its authorities
	Create(ctx context.Context, user *models.User) error

	// Count returns the number of stored users
	Count(ctx context.Context) (int, error)
}

// AuditRepository handles security audit log persistence
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUsername retrieves audit logs for a user with pagination, newest first
	GetByUsername(ctx context.Context, username string, limit, offset int) ([]*models.AuditLog, error)

	// GetByDateRange retrieves audit logs within a date range, newest first
	GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users     UserRepository
	AuditLogs AuditRepository
}
