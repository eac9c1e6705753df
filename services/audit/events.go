package audit

import (
	"context"

	"github.com/upb/token-auth-api/internal/policy"
	"github.com/upb/token-auth-api/models"
)

// RequestInfo carries the request metadata attached to every security event
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
	Secure    bool
}

type requestInfoKey struct{}

// ContextWithRequestInfo stores request metadata for events recorded further down the chain
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the request metadata stored in ctx, if any
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// Convenience methods for recording security events.
// They are safe to call on a nil *AuditService.

// Record queues a prepared audit log, stamping it with the request metadata from ctx
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) {
	if s == nil || log == nil {
		return
	}
	info := RequestInfoFromContext(ctx)
	log.WithRequest(info.RequestID, info.IPAddress, info.UserAgent, info.Secure)

	// LogEvent already reports drops; the request must not fail because of auditing
	_ = s.LogEvent(&AuditEvent{Log: log})
}

// LoginSucceeded records a successful credential exchange
func (s *AuditService) LoginSucceeded(ctx context.Context, username, tokenID string) {
	s.Record(ctx, models.NewAuditLog(models.AuditActionLoginSucceeded).
		WithUsername(username).
		WithOperation(string(policy.OpLogin)).
		WithTokenID(tokenID))
}

// LoginFailed records a rejected credential exchange.
// identifier is the submitted username or email, never the password.
func (s *AuditService) LoginFailed(ctx context.Context, identifier, reason string) {
	s.Record(ctx, models.NewAuditLog(models.AuditActionLoginFailed).
		WithUsername(identifier).
		WithOperation(string(policy.OpLogin)).
		WithReason(reason))
}

// TokenRefreshed records a successful refresh
func (s *AuditService) TokenRefreshed(ctx context.Context, username, previousID, tokenID string, refreshCount int) {
	s.Record(ctx, models.NewAuditLog(models.AuditActionTokenRefreshed).
		WithUsername(username).
		WithOperation(string(policy.OpRefresh)).
		WithTokenID(tokenID).
		WithDetails(map[string]interface{}{
			"previous_token_id": previousID,
			"refresh_count":     refreshCount,
		}))
}

// RefreshDenied records a refused refresh
func (s *AuditService) RefreshDenied(ctx context.Context, username, tokenID, reason string) {
	s.Record(ctx, models.NewAuditLog(models.AuditActionRefreshDenied).
		WithUsername(username).
		WithOperation(string(policy.OpRefresh)).
		WithTokenID(tokenID).
		WithReason(reason))
}

// TokenRejected records a bearer token that failed validation.
// redacted must be the output of token.Redact.
func (s *AuditService) TokenRejected(ctx context.Context, reason, redacted string) {
	s.Record(ctx, models.NewAuditLog(models.AuditActionTokenRejected).
		WithReason(reason).
		WithDetails(map[string]interface{}{"token": redacted}))
}

// AccessDenied records a request refused by the authorization policy
func (s *AuditService) AccessDenied(ctx context.Context, username, operation, reason string, status int) {
	s.Record(ctx, models.NewAuditLog(models.AuditActionAccessDenied).
		WithUsername(username).
		WithOperation(operation).
		WithReason(reason).
		WithDetails(map[string]interface{}{"status": status}))
}
