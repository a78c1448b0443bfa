package handoff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcome is the recorded result of a handoff exchange
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeEstablished Outcome = "established"
	OutcomeFailed      Outcome = "failed"
)

const defaultLedgerPrefix = "recipebook:handoff:"

// Ledger records which external tokens have already been exchanged
type Ledger interface {
	// Claim atomically records key as pending. When the key already exists it returns
	// claimed=false and the recorded outcome.
	Claim(ctx context.Context, key string) (claimed bool, current Outcome, err error)
	// Complete records the final outcome for a claimed key
	Complete(ctx context.Context, key string, outcome Outcome) error
	Ping(ctx context.Context) error
}

// LedgerKey derives the ledger key for an external token. Raw tokens are never stored.
func LedgerKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	outcome Outcome
	expires time.Time
}

// MemoryLedger is a process-local Ledger
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLedger creates an in-memory ledger whose entries expire after ttl
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryLedger) Claim(_ context.Context, key string) (bool, Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if entry, ok := l.entries[key]; ok {
		return false, entry.outcome, nil
	}
	l.entries[key] = memoryEntry{outcome: OutcomePending, expires: now.Add(l.ttl)}
	return true, OutcomePending, nil
}

func (l *MemoryLedger) Complete(_ context.Context, key string, outcome Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return fmt.Errorf("handoff ledger entry not found")
	}
	entry.outcome = outcome
	l.entries[key] = entry
	return nil
}

func (l *MemoryLedger) Ping(context.Context) error {
	return nil
}

// Len returns the number of live entries
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	return len(l.entries)
}

func (l *MemoryLedger) pruneLocked(now time.Time) {
	for k, e := range l.entries {
		if !now.Before(e.expires) {
			delete(l.entries, k)
		}
	}
}

// RedisLedger is a Ledger shared across gateway replicas
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLedger creates a Redis-backed ledger. An empty prefix uses the default.
func NewRedisLedger(client *redis.Client, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = defaultLedgerPrefix
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) Claim(ctx context.Context, key string) (bool, Outcome, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, string(OutcomePending), l.ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("failed to claim handoff: %w", err)
	}
	if ok {
		return true, OutcomePending, nil
	}

	current, err := l.client.Get(ctx, l.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as still in flight
		return false, OutcomePending, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to read handoff: %w", err)
	}
	return false, Outcome(current), nil
}

func (l *RedisLedger) Complete(ctx context.Context, key string, outcome Outcome) error {
	if err := l.client.Set(ctx, l.prefix+key, string(outcome), l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete handoff: %w", err)
	}
	return nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
