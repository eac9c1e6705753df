package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of security event being audited
type AuditAction string

const (
	AuditActionLoginSucceeded AuditAction = "login_succeeded"
	AuditActionLoginFailed    AuditAction = "login_failed"
	AuditActionTokenRefreshed AuditAction = "token_refreshed"
	AuditActionRefreshDenied  AuditAction = "refresh_denied"
	AuditActionTokenRejected  AuditAction = "token_rejected"
	AuditActionAccessDenied   AuditAction = "access_denied"
)

// AuditLog represents a security audit trail entry
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Action    AuditAction     `json:"action" db:"action"`
	Username  *string         `json:"username,omitempty" db:"username"`
	Operation string          `json:"operation,omitempty" db:"operation"`
	Reason    string          `json:"reason,omitempty" db:"reason"`
	TokenID   *string         `json:"token_id,omitempty" db:"token_id"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Secure    bool            `json:"secure" db:"secure"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithUsername sets the username the event refers to
func (a *AuditLog) WithUsername(username string) *AuditLog {
	if username != "" {
		a.Username = &username
	}
	return a
}

// WithOperation sets the operation identifier
func (a *AuditLog) WithOperation(operation string) *AuditLog {
	a.Operation = operation
	return a
}

// WithReason sets a short machine-readable reason
func (a *AuditLog) WithReason(reason string) *AuditLog {
	a.Reason = reason
	return a
}

// WithTokenID sets the jti of the token involved
func (a *AuditLog) WithTokenID(tokenID string) *AuditLog {
	if tokenID != "" {
		a.TokenID = &tokenID
	}
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string, secure bool) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	a.Secure = secure
	return a
}
