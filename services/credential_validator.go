package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories"
	"go.uber.org/zap"
)

// Authentication failure reasons, recorded in audit events and never returned to clients
const (
	ReasonUnknownUser    = "unknown_user"
	ReasonBadCredentials = "bad_credentials"
	ReasonInactiveUser   = "inactive_user"
)

// CredentialValidator checks a username (or email) and password against the user store
type CredentialValidator struct {
	users     repositories.UserRepository
	hasher    PasswordHasher
	dummyHash string
	logger    *zap.Logger
}

// NewCredentialValidator creates a validator.
// A throwaway hash is prepared so that lookups of unknown users cost the same
// as a real password comparison.
func NewCredentialValidator(users repositories.UserRepository, hasher PasswordHasher, logger *zap.Logger) (*CredentialValidator, error) {
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare credential validator: %w", err)
	}

	return &CredentialValidator{
		users:     users,
		hasher:    hasher,
		dummyHash: dummy,
		logger:    logger,
	}, nil
}

// ValidateCredentials returns the identity of the user when the password matches.
// Unknown users, wrong passwords and inactive accounts all yield ErrAuthenticationFailed.
func (v *CredentialValidator) ValidateCredentials(ctx context.Context, username, password string) (*models.UserIdentity, error) {
	user, err := v.users.FindByUsernameOrEmail(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			_ = v.hasher.Compare(v.dummyHash, password)
			return nil, authenticationFailed(ReasonUnknownUser)
		}
		return nil, WrapInternal("failed to look up user", err)
	}

	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			v.logger.Error("password comparison failed",
				zap.String("username", user.Username),
				zap.Error(err))
		}
		return nil, authenticationFailed(ReasonBadCredentials)
	}

	if !user.Active {
		return nil, authenticationFailed(ReasonInactiveUser)
	}

	return user.Identity(), nil
}

// authenticationFailed builds a fresh ErrAuthenticationFailed carrying the internal reason
func authenticationFailed(reason string) *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, ErrAuthenticationFailed.Message, nil).
		WithDetail("reason", reason)
}

// FailureReason returns the internal reason attached to an authentication failure
func FailureReason(err error) string {
	if reason, ok := GetErrorDetails(err)["reason"].(string); ok {
		return reason
	}
	return ""
}
