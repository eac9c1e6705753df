package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories"
	"github.com/upb/token-auth-api/utils"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CreateUserInput is the data needed to register a user
type CreateUserInput struct {
	Username    string             `json:"username" validate:"required,min=3,max=255,excludes=@"`
	Email       string             `json:"email" validate:"required,email,max=255"`
	Password    string             `json:"password" validate:"required,min=8,max=72"`
	FirstName   string             `json:"first_name" validate:"max=255"`
	LastName    string             `json:"last_name" validate:"max=255"`
	Authorities []models.Authority `json:"authorities" validate:"dive,oneof=ADMIN USER"`
}

// UserService exposes user records to the API
type UserService struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	logger *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(users repositories.UserRepository, hasher PasswordHasher, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// ListUsers returns a page of users and the total count
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		return nil, 0, NewDomainError(ErrorTypeValidation, "offset must not be negative", nil)
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, WrapInternal("failed to list users", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, WrapInternal("failed to count users", err)
	}
	return users, total, nil
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal("failed to get user", err)
	}
	return user, nil
}

// CurrentUser returns the stored record of an authenticated identity
func (s *UserService) CurrentUser(ctx context.Context, identity *models.UserIdentity) (*models.User, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}

	user, err := s.users.FindByUsername(ctx, identity.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal("failed to get current user", err)
	}
	return user, nil
}

// CreateUser validates the input, hashes the password and stores the user
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	if err := utils.ValidateStruct(input); err != nil {
		domainErr := NewDomainError(ErrorTypeValidation, "invalid user", err)
		for field, msg := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, msg)
		}
		return nil, domainErr
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(input.Username, input.Email, hash, input.Authorities...)
	user.FirstName = input.FirstName
	user.LastName = input.LastName

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateUser) {
			return nil, ErrDuplicateUser
		}
		return nil, WrapInternal("failed to create user", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Strings("authorities", user.AuthorityNames()))
	return user, nil
}
