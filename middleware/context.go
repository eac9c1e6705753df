package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/token"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// SecurityContextKey is the context key for the request's SecurityContext
	SecurityContextKey contextKey = "security_context"
)

// SchemeBearer is the authentication scheme reported for bearer-token callers
const SchemeBearer = "Bearer"

// SecurityContext is the per-request view of who is calling.
// It is built once by the authentication middleware and never modified afterwards.
// The zero value is an anonymous caller on an insecure transport.
type SecurityContext struct {
	identity        *models.UserIdentity
	claims          *token.Claims
	transportSecure bool
	scheme          string
}

// NewSecurityContext creates an authenticated SecurityContext
func NewSecurityContext(identity *models.UserIdentity, claims *token.Claims, transportSecure bool) SecurityContext {
	return SecurityContext{
		identity:        identity,
		claims:          claims,
		transportSecure: transportSecure,
		scheme:          SchemeBearer,
	}
}

// AnonymousSecurityContext creates a SecurityContext without identity
func AnonymousSecurityContext(transportSecure bool) SecurityContext {
	return SecurityContext{transportSecure: transportSecure}
}

// Identity returns the caller's identity, or nil when anonymous
func (s SecurityContext) Identity() *models.UserIdentity {
	if s.identity == nil {
		return nil
	}
	clone := *s.identity
	clone.Authorities = append([]string(nil), s.identity.Authorities...)
	return &clone
}

// Claims returns the validated claims of the presented token, or nil when anonymous
func (s SecurityContext) Claims() *token.Claims {
	if s.claims == nil {
		return nil
	}
	clone := *s.claims
	clone.Authorities = append([]string(nil), s.claims.Authorities...)
	return &clone
}

// IsAuthenticated reports whether the caller presented a valid token
func (s SecurityContext) IsAuthenticated() bool {
	return s.identity != nil
}

// Username returns the caller's username, or "" when anonymous
func (s SecurityContext) Username() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.Username
}

// HasAnyAuthority reports whether the caller holds at least one of the authorities
func (s SecurityContext) HasAnyAuthority(authorities ...string) bool {
	return s.identity.HasAnyAuthority(authorities...)
}

// IsSecure reports whether the request arrived over TLS
func (s SecurityContext) IsSecure() bool {
	return s.transportSecure
}

// AuthenticationScheme returns "Bearer" for authenticated callers and "" otherwise
func (s SecurityContext) AuthenticationScheme() string {
	return s.scheme
}

// GetRequestIDFromContext retrieves the request ID from context.
// It falls back to the ID assigned by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetSecurityContext retrieves the SecurityContext from context.
// Requests that never went through the authentication middleware are anonymous.
func GetSecurityContext(ctx context.Context) SecurityContext {
	if val := ctx.Value(SecurityContextKey); val != nil {
		if sc, ok := val.(SecurityContext); ok {
			return sc
		}
	}
	return SecurityContext{}
}

// WithSecurityContext adds a SecurityContext to the context
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, SecurityContextKey, sc)
}
