package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRevocationPrefix = "recipebook:session:revoked:"

// RevocationStore records signed-out session IDs until their natural expiry
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	Ping(ctx context.Context) error
}

// MemoryRevocationStore is a process-local RevocationStore
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore creates an empty in-memory store
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke records sessionID until the given time
func (s *MemoryRevocationStore) Revoke(_ context.Context, sessionID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = until
	return nil
}

// IsRevoked reports whether sessionID is revoked; expired entries are pruned
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.revoked, sessionID)
		return false, nil
	}
	return true, nil
}

// Ping always succeeds
func (s *MemoryRevocationStore) Ping(context.Context) error {
	return nil
}

// RedisRevocationStore keeps revocations in Redis with a TTL matching the session expiry
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore creates a Redis-backed store. An empty prefix uses the default.
func NewRedisRevocationStore(client *redis.Client, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = defaultRevocationPrefix
	}
	return &RedisRevocationStore{client: client, prefix: prefix, now: time.Now}
}

// Revoke sets the revocation key with a TTL until the session expires
func (s *RedisRevocationStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, until.Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}
	return nil
}

// IsRevoked reports whether the revocation key exists
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	err := s.client.Get(ctx, s.prefix+sessionID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
}

// Ping checks Redis connectivity
func (s *RedisRevocationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
