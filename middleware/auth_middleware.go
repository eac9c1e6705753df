package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/upb/token-auth-api/internal/observability"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories"
	"github.com/upb/token-auth-api/services/audit"
	"github.com/upb/token-auth-api/token"
	"go.uber.org/zap"
)

// TokenParser validates bearer tokens
type TokenParser interface {
	ParseToken(ctx context.Context, tokenString string) (*token.Claims, error)
}

// UserLookup resolves the user a token was issued to
type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Outcome is the result kind of resolving a request's credentials
type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeAnonymous     Outcome = "anonymous"
	OutcomeInvalid       Outcome = "invalid"
)

// Reasons reported with OutcomeInvalid
const (
	ReasonMalformed    = "malformed"
	ReasonExpired      = "expired"
	ReasonRevoked      = "revoked"
	ReasonUnknownUser  = "unknown_user"
	ReasonInactiveUser = "inactive_user"
	ReasonLookupFailed = "lookup_failed"
)

// AuthResult is the outcome of resolving the credentials of a request.
// Context is always usable: invalid credentials resolve to an anonymous context.
type AuthResult struct {
	Outcome Outcome
	Reason  string
	Context SecurityContext
	Err     error

	// Token is the redacted form of the presented token
	Token string
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	tokens     TokenParser
	users      UserLookup
	audit      *audit.AuditService
	metrics    *observability.Metrics
	trustProxy bool
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
// When trustProxy is set, X-Forwarded-Proto decides whether the transport is secure.
func NewAuthMiddleware(
	tokens TokenParser,
	users UserLookup,
	auditService *audit.AuditService,
	metrics *observability.Metrics,
	trustProxy bool,
	logger *zap.Logger,
) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:     tokens,
		users:      users,
		audit:      auditService,
		metrics:    metrics,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// Authenticate attaches a SecurityContext to every request.
// It never rejects a request: missing or invalid credentials continue as anonymous,
// and authorization decides whether that is enough.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		ctx = audit.ContextWithRequestInfo(ctx, audit.RequestInfo{
			RequestID: requestID,
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			Secure:    m.isSecure(r),
		})
		r = r.WithContext(ctx)

		result := m.Resolve(r)
		m.metrics.RecordAuthentication(string(result.Outcome), result.Reason)

		switch result.Outcome {
		case OutcomeInvalid:
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("reason", result.Reason),
				zap.String("token", result.Token),
			}
			if result.Err != nil {
				fields = append(fields, zap.Error(result.Err))
			}
			if result.Reason == ReasonLookupFailed {
				m.logger.Error("user lookup failed, continuing as anonymous", fields...)
			} else {
				m.logger.Warn("invalid bearer token, continuing as anonymous", fields...)
			}
			m.audit.TokenRejected(ctx, result.Reason, result.Token)

		case OutcomeAuthenticated:
			m.logger.Debug("authentication successful",
				zap.String("request_id", requestID),
				zap.String("username", result.Context.Username()))
		}

		next.ServeHTTP(w, r.WithContext(WithSecurityContext(ctx, result.Context)))
	})
}

// Resolve derives the SecurityContext of a request without side effects
func (m *AuthMiddleware) Resolve(r *http.Request) AuthResult {
	ctx := r.Context()
	secure := m.isSecure(r)
	anonymous := AnonymousSecurityContext(secure)

	raw, ok := extractBearerToken(r)
	if !ok {
		return AuthResult{Outcome: OutcomeAnonymous, Context: anonymous}
	}

	invalid := func(reason string, err error) AuthResult {
		return AuthResult{
			Outcome: OutcomeInvalid,
			Reason:  reason,
			Context: anonymous,
			Err:     err,
			Token:   token.Redact(raw),
		}
	}

	if raw == "" {
		return invalid(ReasonMalformed, token.ErrMalformedToken)
	}

	claims, err := m.tokens.ParseToken(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredToken):
			return invalid(ReasonExpired, err)
		case errors.Is(err, token.ErrRevokedToken):
			return invalid(ReasonRevoked, err)
		default:
			return invalid(ReasonMalformed, err)
		}
	}

	// Authorities come from the user store so revoked grants take effect immediately
	// The subject is a canonical username, never an email
	user, err := m.users.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return invalid(ReasonUnknownUser, err)
		}
		return invalid(ReasonLookupFailed, err)
	}
	if !user.Active {
		return invalid(ReasonInactiveUser, nil)
	}

	return AuthResult{
		Outcome: OutcomeAuthenticated,
		Context: NewSecurityContext(user.Identity(), claims, secure),
	}
}

func (m *AuthMiddleware) isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return m.trustProxy && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// extractBearerToken extracts the Bearer token from the Authorization header.
// ok is false when the header is absent or uses another scheme.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	// Check if it starts with "Bearer "
	parts := strings.SplitN(authHeader, " ", 2)
	if !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	if len(parts) != 2 {
		return "", true
	}

	return strings.TrimSpace(parts[1]), true
}

// clientIP returns the remote address without port.
// chi's RealIP middleware has already applied X-Forwarded-For when it runs first.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
