package middleware

import (
	"net/http"

	"github.com/upb/token-auth-api/internal/observability"
	"github.com/upb/token-auth-api/internal/policy"
	"github.com/upb/token-auth-api/services/audit"
	"github.com/upb/token-auth-api/utils"
	"go.uber.org/zap"
)

// Denial reasons recorded for rejected requests
const (
	DenyAuthenticationRequired = "authentication_required"
	DenyMissingAuthority       = "missing_authority"
)

// Decision is the authorization verdict for one request
type Decision struct {
	Allowed bool
	Status  int
	Reason  string
}

// AuthzMiddleware enforces the policy table on each route
type AuthzMiddleware struct {
	table   policy.Table
	audit   *audit.AuditService
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthzMiddleware creates a new AuthzMiddleware.
// The table must not be modified after this call.
func NewAuthzMiddleware(
	table policy.Table,
	auditService *audit.AuditService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthzMiddleware {
	return &AuthzMiddleware{
		table:   table,
		audit:   auditService,
		metrics: metrics,
		logger:  logger,
	}
}

// Decide evaluates the policy of op for the caller
func (m *AuthzMiddleware) Decide(op policy.Operation, sc SecurityContext) Decision {
	p := m.table.Lookup(op)

	if !sc.IsAuthenticated() {
		if p.AnonymousAllowed && len(p.RequiredAuthorities) == 0 {
			return Decision{Allowed: true}
		}
		return Decision{Status: http.StatusUnauthorized, Reason: DenyAuthenticationRequired}
	}

	if len(p.RequiredAuthorities) > 0 && !sc.HasAnyAuthority(p.RequiredAuthorities...) {
		return Decision{Status: http.StatusForbidden, Reason: DenyMissingAuthority}
	}

	return Decision{Allowed: true}
}

// Authorize returns middleware enforcing the policy of op.
// Rejected requests never reach the handler.
func (m *AuthzMiddleware) Authorize(op policy.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sc := GetSecurityContext(ctx)

			decision := m.Decide(op, sc)
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.Warn("access denied",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("operation", string(op)),
				zap.String("username", sc.Username()),
				zap.String("reason", decision.Reason))
			m.metrics.RecordAccessDenied(string(op), decision.Status)
			m.audit.AccessDenied(ctx, sc.Username(), string(op), decision.Reason, decision.Status)

			if decision.Status == http.StatusUnauthorized {
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}
			_ = utils.WriteForbidden(w, "Insufficient permissions")
		})
	}
}
