package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Authority is a role granted to a user
type Authority string

const (
	AuthorityAdmin Authority = "ADMIN"
	AuthorityUser  Authority = "USER"
)

// User represents an account in the user store
type User struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Username     string      `json:"username" db:"username"`
	Email        string      `json:"email" db:"email"`
	PasswordHash string      `json:"-" db:"password_hash"`
	FirstName    string      `json:"first_name" db:"first_name"`
	LastName     string      `json:"last_name" db:"last_name"`
	Active       bool        `json:"active" db:"active"`
	Authorities  []Authority `json:"authorities" db:"authorities"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new active User instance
func NewUser(username, email, passwordHash string, authorities ...Authority) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Active:       true,
		Authorities:  authorities,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasAuthority returns true if the user was granted the authority
func (u *User) HasAuthority(a Authority) bool {
	for _, granted := range u.Authorities {
		if granted == a {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the user has the admin authority
func (u *User) IsAdmin() bool {
	return u.HasAuthority(AuthorityAdmin)
}

// AuthorityNames returns the authorities as plain strings
func (u *User) AuthorityNames() []string {
	names := make([]string, 0, len(u.Authorities))
	for _, a := range u.Authorities {
		names = append(names, string(a))
	}
	return names
}

// Identity returns the identity view of the user consumed by the auth pipeline
func (u *User) Identity() *UserIdentity {
	return &UserIdentity{
		Username:    u.Username,
		Authorities: u.AuthorityNames(),
	}
}
