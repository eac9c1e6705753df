// Package redis stores revoked token ids in Redis so that revocations are
// shared between server replicas.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/token-auth-api/token"
)

// DefaultKeyPrefix namespaces revocation keys
const DefaultKeyPrefix = "token-auth:revoked:"

// Config configures the Redis revocation store
type Config struct {
	Client    redis.UniversalClient
	KeyPrefix string
}

// RevocationStore implements token.RevocationStore on Redis keys with expiry
type RevocationStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a revocation store backed by the given client
func New(cfg Config) (*RevocationStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RevocationStore{
		client: cfg.Client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// NewFromURL parses a redis:// URL and creates a store with its own client
func NewFromURL(url, keyPrefix string) (*RevocationStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(Config{Client: redis.NewClient(opts), KeyPrefix: keyPrefix})
}

// Revoke marks the token id as revoked until the given time with SET NX, so only
// one caller can revoke an id. Ids whose until is already in the past are not stored.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	ok, err := s.client.SetNX(ctx, s.key(tokenID), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if !ok {
		return token.ErrAlreadyRevoked
	}
	return nil
}

// IsRevoked reports whether the token id is revoked
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// Ping checks connectivity, used by readiness checks
func (s *RevocationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (s *RevocationStore) Close() error {
	return s.client.Close()
}

func (s *RevocationStore) key(tokenID string) string {
	return s.prefix + tokenID
}
