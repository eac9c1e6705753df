package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// User tests
func TestNewUser(t *testing.T) {
	user := NewUser("alice", "Alice@Example.com", "hash", AuthorityUser)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.Active)
	assert.Equal(t, []Authority{AuthorityUser}, user.Authorities)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
}

func TestUser_TableName(t *testing.T) {
	assert.Equal(t, "users", User{}.TableName())
}

func TestUser_Authorities(t *testing.T) {
	admin := NewUser("admin", "admin@example.com", "hash", AuthorityAdmin, AuthorityUser)
	user := NewUser("user", "user@example.com", "hash", AuthorityUser)

	assert.True(t, admin.IsAdmin())
	assert.False(t, user.IsAdmin())
	assert.True(t, user.HasAuthority(AuthorityUser))
	assert.Equal(t, []string{"ADMIN", "USER"}, admin.AuthorityNames())

	identity := admin.Identity()
	assert.Equal(t, "admin", identity.Username)
	assert.Equal(t, []string{"ADMIN", "USER"}, identity.Authorities)
}

func TestUser_JSONHidesPasswordHash(t *testing.T) {
	user := NewUser("bob", "bob@example.com", "$2a$12$secret", AuthorityUser)

	data, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
	assert.NotContains(t, string(data), "password")
}

func TestUserIdentity_HasAnyAuthority(t *testing.T) {
	identity := &UserIdentity{Username: "bob", Authorities: []string{"USER"}}

	assert.True(t, identity.HasAnyAuthority("USER"))
	assert.True(t, identity.HasAnyAuthority("ADMIN", "USER"))
	assert.False(t, identity.HasAnyAuthority("ADMIN"))
	assert.False(t, identity.HasAnyAuthority())

	var anonymous *UserIdentity
	assert.False(t, anonymous.HasAnyAuthority("USER"))
}

// AuditLog tests
func TestNewAuditLog(t *testing.T) {
	log := NewAuditLog(AuditActionLoginFailed).
		WithUsername("alice").
		WithOperation("auth.login").
		WithReason("authentication_failed").
		WithRequest("req-1", "10.0.0.1", "curl/8.0", true).
		WithDetails(map[string]string{"scheme": "bearer"})

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, AuditActionLoginFailed, log.Action)
	require.NotNil(t, log.Username)
	assert.Equal(t, "alice", *log.Username)
	assert.Equal(t, "auth.login", log.Operation)
	assert.Equal(t, "req-1", log.RequestID)
	assert.True(t, log.Secure)
	assert.JSONEq(t, `{"scheme":"bearer"}`, string(log.Details))
	assert.Nil(t, log.TokenID)
}

func TestAuditLog_EmptyUsernameStaysNil(t *testing.T) {
	log := NewAuditLog(AuditActionTokenRejected).WithUsername("").WithTokenID("")
	assert.Nil(t, log.Username)
	assert.Nil(t, log.TokenID)
}
