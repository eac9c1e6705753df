package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

const selectUsers = `
	SELECT u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name,
	       u.active, u.created_at, u.updated_at,
	       COALESCE(array_agg(a.authority ORDER BY a.authority) FILTER (WHERE a.authority IS NOT NULL), '{}') AS authorities
	FROM users u
	LEFT JOIN user_authorities a ON a.user_id = u.id
`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, txMgr repositories.TransactionManager, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		txMgr:  txMgr,
		logger: logger,
	}
}

// FindByUsername retrieves a user by exact username
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := selectUsers + `
		WHERE u.username = $1
		GROUP BY u.id
	`

	user, err := r.queryUser(ctx, query, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByUsernameOrEmail retrieves a user by username or (case-insensitive) email.
// A username match wins over an email match.
func (r *UserRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (*models.User, error) {
	query := selectUsers + `
		WHERE u.username = $1 OR u.email = LOWER($1)
		GROUP BY u.id
		ORDER BY (u.username = $1) DESC
		LIMIT 1
	`

	user, err := r.queryUser(ctx, query, identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := selectUsers + `
		WHERE u.id = $1
		GROUP BY u.id
	`

	user, err := r.queryUser(ctx, query, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// List retrieves users ordered by username
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := selectUsers + `
		GROUP BY u.id
		ORDER BY u.username
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// Create inserts the user and its authorities in a single transaction
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	insertUser := `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	insertAuthority := `
		INSERT INTO user_authorities (user_id, authority)
		VALUES ($1, $2)
	`

	err := r.txMgr.InTransaction(ctx, "create_user", func(ctx context.Context) error {
		executor := GetExecutor(ctx, r.db)

		if _, err := executor.ExecContext(ctx, insertUser,
			user.ID,
			user.Username,
			strings.ToLower(user.Email),
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.Active,
			user.CreatedAt,
			user.UpdatedAt,
		); err != nil {
			return err
		}

		for _, authority := range user.Authorities {
			if _, err := executor.ExecContext(ctx, insertAuthority, user.ID, string(authority)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", repositories.ErrDuplicateUser, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("username", user.Username))
	return nil
}

// Count returns the number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	executor := GetExecutor(ctx, r.db)
	user, err := scanUser(executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var authorities []string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
		pq.Array(&authorities),
	)
	if err != nil {
		return nil, err
	}

	user.Authorities = make([]models.Authority, 0, len(authorities))
	for _, a := range authorities {
		user.Authorities = append(user.Authorities, models.Authority(a))
	}
	return user, nil
}
