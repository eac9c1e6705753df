package services

import (
	"context"
	"errors"

	"github.com/upb/token-auth-api/internal/observability"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/services/audit"
	"github.com/upb/token-auth-api/token"
	"go.uber.org/zap"
)

// TokenIssuer issues and refreshes bearer tokens
type TokenIssuer interface {
	Issue(username string, authorities []string) (string, *token.Claims, error)
	Refresh(ctx context.Context, claims *token.Claims) (string, *token.Claims, error)
}

// AuthService exchanges credentials for tokens and refreshes tokens
type AuthService struct {
	credentials *CredentialValidator
	tokens      TokenIssuer
	audit       *audit.AuditService
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewAuthService creates a new AuthService.
// auditService and metrics may be nil.
func NewAuthService(
	credentials *CredentialValidator,
	tokens TokenIssuer,
	auditService *audit.AuditService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		tokens:      tokens,
		audit:       auditService,
		metrics:     metrics,
		logger:      logger,
	}
}

// Login validates the credentials and issues a token for the user
func (s *AuthService) Login(ctx context.Context, creds models.Credentials) (*models.AuthenticationToken, error) {
	identity, err := s.credentials.ValidateCredentials(ctx, creds.Username, creds.Password)
	if err != nil {
		if IsUnauthorizedError(err) {
			reason := FailureReason(err)
			s.metrics.RecordLoginFailure()
			s.audit.LoginFailed(ctx, creds.Username, reason)
			s.logger.Info("login failed",
				zap.String("username", creds.Username),
				zap.String("reason", reason))
		}
		return nil, err
	}

	tokenString, claims, err := s.tokens.Issue(identity.Username, identity.Authorities)
	if err != nil {
		return nil, WrapInternal("failed to issue token", err)
	}

	s.metrics.RecordTokenIssued("login")
	s.audit.LoginSucceeded(ctx, identity.Username, claims.ID)
	s.logger.Info("token issued",
		zap.String("username", identity.Username),
		zap.String("token_id", claims.ID))

	return &models.AuthenticationToken{Token: tokenString}, nil
}

// Refresh issues a new token for the caller's validated claims
func (s *AuthService) Refresh(ctx context.Context, claims *token.Claims) (*models.AuthenticationToken, error) {
	if claims == nil {
		return nil, ErrUnauthorized
	}

	tokenString, refreshed, err := s.tokens.Refresh(ctx, claims)
	if err != nil {
		var reason string
		var result error
		switch {
		case errors.Is(err, token.ErrRefreshLimitReached):
			reason, result = "refresh_limit", ErrRefreshLimitReached
		case errors.Is(err, token.ErrExpiredToken):
			reason, result = "expired", ErrTokenExpired
		case errors.Is(err, token.ErrRevokedToken):
			reason, result = "already_refreshed", ErrInvalidToken
		case errors.Is(err, token.ErrInvalidArgument):
			reason, result = "invalid_claims", ErrUnauthorized
		default:
			return nil, WrapInternal("failed to refresh token", err)
		}

		s.audit.RefreshDenied(ctx, claims.Username, claims.ID, reason)
		s.logger.Info("token refresh denied",
			zap.String("username", claims.Username),
			zap.String("token_id", claims.ID),
			zap.String("reason", reason))
		return nil, result
	}

	s.metrics.RecordTokenIssued("refresh")
	s.audit.TokenRefreshed(ctx, claims.Username, claims.ID, refreshed.ID, refreshed.RefreshCount)
	s.logger.Info("token refreshed",
		zap.String("username", claims.Username),
		zap.String("previous_token_id", claims.ID),
		zap.String("token_id", refreshed.ID),
		zap.Int("refresh_count", refreshed.RefreshCount))

	return &models.AuthenticationToken{Token: tokenString}, nil
}
