package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims is the wire representation of Claims
type jwtClaims struct {
	jwt.RegisteredClaims
	Authorities  []string `json:"authorities"`
	RefreshCount int      `json:"refreshCount"`
	RefreshLimit int      `json:"refreshLimit"`
}

// Claims represents parsed and validated token claims
type Claims struct {
	ID           string
	Username     string
	Authorities  []string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RefreshCount int
	RefreshLimit int
}

// EligibleForRefresh returns true while the refresh counter is below the limit
func (c *Claims) EligibleForRefresh() bool {
	return c.RefreshCount < c.RefreshLimit
}

// HasAuthority returns true if the claims carry the authority
func (c *Claims) HasAuthority(authority string) bool {
	for _, a := range c.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

func (c *jwtClaims) toClaims() *Claims {
	parsed := &Claims{
		ID:           c.ID,
		Username:     c.Subject,
		Authorities:  append([]string{}, c.Authorities...),
		RefreshCount: c.RefreshCount,
		RefreshLimit: c.RefreshLimit,
	}
	if c.IssuedAt != nil {
		parsed.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		parsed.ExpiresAt = c.ExpiresAt.Time
	}
	return parsed
}

// Redact returns a form of the token that is safe to write to logs
func Redact(tokenString string) string {
	const visible = 8
	if len(tokenString) <= visible {
		return "[redacted]"
	}
	return tokenString[:visible] + "...[redacted]"
}
