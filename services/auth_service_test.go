package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/token-auth-api/internal/observability"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/services/audit"
	"github.com/upb/token-auth-api/token"
	"go.uber.org/zap"
)

type authFixture struct {
	*fixture
	service  *AuthService
	metrics  *observability.Metrics
	auditLog *MockAuditRepository
	audit    *audit.AuditService
}

// MockAuditRepository captures inserted audit logs
type MockAuditRepository struct {
	mock.Mock
	logs chan *models.AuditLog
}

func (m *MockAuditRepository) Insert(_ context.Context, log *models.AuditLog) error {
	m.logs <- log
	return nil
}

func (m *MockAuditRepository) GetByUsername(ctx context.Context, username string, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, username, limit, offset)
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByDateRange(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, start, end, limit, offset)
	return nil, args.Error(1)
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := newFixture(t)
	validator, err := NewCredentialValidator(f.users, f.hasher, zap.NewNop())
	require.NoError(t, err)

	repo := &MockAuditRepository{logs: make(chan *models.AuditLog, 100)}
	auditService := audit.NewAuditService(repo, zap.NewNop(), audit.Config{BufferSize: 100, WorkerCount: 1})
	require.NoError(t, auditService.Start())
	t.Cleanup(func() { _ = auditService.Stop(time.Second) })

	metrics := observability.NewMetrics()
	return &authFixture{
		fixture:  f,
		service:  NewAuthService(validator, f.tokens, auditService, metrics, zap.NewNop()),
		metrics:  metrics,
		auditLog: repo,
		audit:    auditService,
	}
}

func (f *authFixture) nextAudit(t *testing.T) *models.AuditLog {
	t.Helper()
	select {
	case log := <-f.auditLog.logs:
		return log
	case <-time.After(2 * time.Second):
		t.Fatal("expected an audit event")
		return nil
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a token for valid credentials", func(t *testing.T) {
		f := newAuthFixture(t)

		result, err := f.service.Login(ctx, models.Credentials{Username: "alice", Password: "wonderland"})
		require.NoError(t, err)
		require.NotEmpty(t, result.Token)

		claims, err := f.tokens.ParseToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Username)
		assert.ElementsMatch(t, []string{"ADMIN", "USER"}, claims.Authorities)
		assert.Equal(t, 0, claims.RefreshCount)

		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokensIssued.WithLabelValues("login")))

		event := f.nextAudit(t)
		assert.Equal(t, models.AuditActionLoginSucceeded, event.Action)
		require.NotNil(t, event.TokenID)
		assert.Equal(t, claims.ID, *event.TokenID)
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		f := newAuthFixture(t)

		attempts := []models.Credentials{
			{Username: "alice", Password: "wrong"},
			{Username: "nobody", Password: "wonderland"},
			{Username: "carol", Password: "disabled"},
		}
		for _, creds := range attempts {
			result, err := f.service.Login(ctx, creds)
			assert.Nil(t, result)
			require.Error(t, err)

			var domainErr *DomainError
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, ErrorTypeUnauthorized, domainErr.Type)
			assert.Equal(t, ErrAuthenticationFailed.Message, domainErr.Message)

			event := f.nextAudit(t)
			assert.Equal(t, models.AuditActionLoginFailed, event.Action)
			assert.NotEmpty(t, event.Reason)
		}

		assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.LoginFailures))
	})
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()

	login := func(t *testing.T, f *authFixture) (string, *token.Claims) {
		t.Helper()
		result, err := f.service.Login(ctx, models.Credentials{Username: "bob", Password: "builder"})
		require.NoError(t, err)
		claims, err := f.tokens.ParseToken(ctx, result.Token)
		require.NoError(t, err)
		f.nextAudit(t)
		return result.Token, claims
	}

	t.Run("refresh extends expiry and revokes the old token", func(t *testing.T) {
		f := newAuthFixture(t)
		original, claims := login(t, f)

		f.now = f.now.Add(10 * time.Minute)
		result, err := f.service.Refresh(ctx, claims)
		require.NoError(t, err)

		refreshed, err := f.tokens.ParseToken(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, "bob", refreshed.Username)
		assert.Equal(t, claims.Authorities, refreshed.Authorities)
		assert.True(t, refreshed.ExpiresAt.After(claims.ExpiresAt))
		assert.Equal(t, 1, refreshed.RefreshCount)

		_, err = f.tokens.ParseToken(ctx, original)
		assert.ErrorIs(t, err, token.ErrRevokedToken)

		event := f.nextAudit(t)
		assert.Equal(t, models.AuditActionTokenRefreshed, event.Action)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokensIssued.WithLabelValues("refresh")))
	})

	t.Run("refresh limit maps to forbidden", func(t *testing.T) {
		f := newAuthFixture(t)
		_, claims := login(t, f)

		result, err := f.service.Refresh(ctx, claims)
		require.NoError(t, err)
		f.nextAudit(t)

		refreshed, err := f.tokens.ParseToken(ctx, result.Token)
		require.NoError(t, err)

		_, err = f.service.Refresh(ctx, refreshed)
		assert.True(t, IsForbiddenError(err))
		assert.ErrorIs(t, err, ErrRefreshLimitReached)

		event := f.nextAudit(t)
		assert.Equal(t, models.AuditActionRefreshDenied, event.Action)
		assert.Equal(t, "refresh_limit", event.Reason)
	})

	t.Run("replayed claims map to unauthorized", func(t *testing.T) {
		f := newAuthFixture(t)
		_, claims := login(t, f)

		_, err := f.service.Refresh(ctx, claims)
		require.NoError(t, err)
		f.nextAudit(t)

		_, err = f.service.Refresh(ctx, claims)
		assert.True(t, IsUnauthorizedError(err))
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, "already_refreshed", f.nextAudit(t).Reason)
	})

	t.Run("expired claims map to unauthorized", func(t *testing.T) {
		f := newAuthFixture(t)
		_, claims := login(t, f)

		f.now = f.now.Add(2 * time.Hour)
		_, err := f.service.Refresh(ctx, claims)
		assert.True(t, IsUnauthorizedError(err))
		assert.Equal(t, "expired", f.nextAudit(t).Reason)
	})

	t.Run("missing claims", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.service.Refresh(ctx, nil)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestAuthService_WithoutOptionalCollaborators(t *testing.T) {
	f := newFixture(t)
	validator, err := NewCredentialValidator(f.users, f.hasher, zap.NewNop())
	require.NoError(t, err)

	service := NewAuthService(validator, f.tokens, nil, nil, zap.NewNop())

	_, err = service.Login(context.Background(), models.Credentials{Username: "alice", Password: "nope"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	result, err := service.Login(context.Background(), models.Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}
