package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformedToken is returned when the token cannot be decoded or its signature,
	// issuer or audience does not verify. The causes are deliberately not distinguished.
	ErrMalformedToken = errors.New("malformed token")

	// ErrExpiredToken is returned when a correctly signed token is past its expiry
	ErrExpiredToken = errors.New("token expired")

	// ErrRevokedToken is returned when the token id has been revoked
	ErrRevokedToken = errors.New("token revoked")

	// ErrInvalidArgument is returned for empty usernames or missing claims
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRefreshLimitReached is returned when a token was refreshed too many times
	ErrRefreshLimitReached = errors.New("token refresh limit reached")

	// ErrAlreadyRevoked is returned by a RevocationStore when the token id is already revoked
	ErrAlreadyRevoked = errors.New("token already revoked")
)

const (
	// DefaultTTL is the validity of an issued token
	DefaultTTL = 10 * time.Hour

	// DefaultRefreshLimit is how many times a token chain may be refreshed
	DefaultRefreshLimit = 3

	// DefaultClockSkew is the tolerance applied to every expiry comparison
	DefaultClockSkew = 10 * time.Second

	// MinSecretLength is the minimum HMAC key size in bytes
	MinSecretLength = 32
)

var signingMethod = jwt.SigningMethodHS256

// RevocationStore records token ids that must no longer be accepted
type RevocationStore interface {
	// Revoke marks the token id as revoked until the given time.
	// It is atomic: when the id is already revoked it returns ErrAlreadyRevoked.
	Revoke(ctx context.Context, tokenID string, until time.Time) error

	// IsRevoked reports whether the token id is revoked
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Config holds configuration for Service
type Config struct {
	Secret       []byte
	Issuer       string
	Audience     string
	TTL          time.Duration
	RefreshLimit int
	ClockSkew    time.Duration
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRevocations enables revocation checks and refresh replay protection
func WithRevocations(store RevocationStore) Option {
	return func(s *Service) {
		s.revocations = store
	}
}

// Service issues, parses and refreshes signed bearer tokens.
// It is immutable after construction and safe for concurrent use.
type Service struct {
	secret       []byte
	issuer       string
	audience     string
	ttl          time.Duration
	refreshLimit int
	clockSkew    time.Duration
	now          func() time.Time
	revocations  RevocationStore
	parser       *jwt.Parser
}

// NewService creates a new token service
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrInvalidArgument, MinSecretLength)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidArgument)
	}
	if cfg.RefreshLimit < 0 {
		return nil, fmt.Errorf("%w: refresh limit must not be negative", ErrInvalidArgument)
	}
	if cfg.ClockSkew < 0 {
		return nil, fmt.Errorf("%w: clock skew must not be negative", ErrInvalidArgument)
	}

	s := &Service{
		secret:       append([]byte{}, cfg.Secret...),
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		ttl:          cfg.TTL,
		refreshLimit: cfg.RefreshLimit,
		clockSkew:    cfg.ClockSkew,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(s.audience))
	}
	s.parser = jwt.NewParser(parserOpts...)

	return s, nil
}

// TTL returns the validity of issued tokens
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// IssueToken issues a new token for the user with the given authorities
func (s *Service) IssueToken(username string, authorities []string) (string, error) {
	tokenString, _, err := s.Issue(username, authorities)
	return tokenString, err
}

// Issue is IssueToken that also returns the claims of the new token
func (s *Service) Issue(username string, authorities []string) (string, *Claims, error) {
	if username == "" {
		return "", nil, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	now := s.now()
	return s.sign(username, authorities, now, now.Add(s.ttl), 0, s.refreshLimit)
}

// ParseToken verifies the token signature and returns its claims.
// Signature and structure are verified before expiry is considered.
func (s *Service) ParseToken(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	token, err := s.parser.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	raw, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid || raw.Subject == "" || raw.ID == "" {
		return nil, ErrMalformedToken
	}

	claims := raw.toClaims()
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return nil, ErrMalformedToken
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}

	return claims, nil
}

// RefreshToken issues a new token for previously validated claims.
// Refresh is only possible before expiry; there is no grace window.
func (s *Service) RefreshToken(ctx context.Context, claims *Claims) (string, error) {
	tokenString, _, err := s.Refresh(ctx, claims)
	return tokenString, err
}

// Refresh is RefreshToken that also returns the claims of the new token
func (s *Service) Refresh(ctx context.Context, claims *Claims) (string, *Claims, error) {
	if claims == nil || claims.Username == "" {
		return "", nil, fmt.Errorf("%w: claims are required", ErrInvalidArgument)
	}

	now := s.now()
	if !now.Add(-s.clockSkew).Before(claims.ExpiresAt) {
		return "", nil, ErrExpiredToken
	}
	if !claims.EligibleForRefresh() {
		return "", nil, ErrRefreshLimitReached
	}

	expiresAt := now.Add(s.ttl)
	if !expiresAt.Truncate(jwt.TimePrecision).After(claims.ExpiresAt) {
		expiresAt = claims.ExpiresAt.Add(jwt.TimePrecision)
	}

	// Consume the presented token first so concurrent refreshes cannot fork the chain
	if s.revocations != nil && claims.ID != "" {
		if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Add(s.clockSkew)); err != nil {
			if errors.Is(err, ErrAlreadyRevoked) {
				return "", nil, ErrRevokedToken
			}
			return "", nil, fmt.Errorf("revoke refreshed token: %w", err)
		}
	}

	return s.sign(claims.Username, claims.Authorities, now, expiresAt, claims.RefreshCount+1, claims.RefreshLimit)
}

func (s *Service) sign(username string, authorities []string, issuedAt, expiresAt time.Time, refreshCount, refreshLimit int) (string, *Claims, error) {
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Authorities:  append([]string{}, authorities...),
		RefreshCount: refreshCount,
		RefreshLimit: refreshLimit,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.toClaims(), nil
}

// classify maps parser errors onto the two externally visible failure kinds
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return ErrMalformedToken
	}
}
