package session

import (
	"context"
	"testing"
	"time"

	"github.com/myrecipebook/web-gateway/internal/testutil"
)

func TestMemoryRevocationStore(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryRevocationStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if revoked, _ := store.IsRevoked(ctx, "s1"); revoked {
		t.Fatal("Unknown session must not be revoked")
	}
	if err := store.Revoke(ctx, "s1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if revoked, _ := store.IsRevoked(ctx, "s1"); !revoked {
		t.Error("Expected s1 to be revoked")
	}

	now = now.Add(2 * time.Hour)
	if revoked, _ := store.IsRevoked(ctx, "s1"); revoked {
		t.Error("Revocation should lapse once the session would have expired")
	}
	if len(store.revoked) != 0 {
		t.Error("Expected lapsed entry to be pruned")
	}
}

func TestRedisRevocationStore(t *testing.T) {
	client := testutil.StartRedis(t)
	store := NewRedisRevocationStore(client, "test:revoked:")
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if revoked, err := store.IsRevoked(ctx, "s1"); err != nil || revoked {
		t.Fatalf("IsRevoked() = %v, %v; want false, nil", revoked, err)
	}
	if err := store.Revoke(ctx, "s1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if revoked, err := store.IsRevoked(ctx, "s1"); err != nil || !revoked {
		t.Fatalf("IsRevoked() = %v, %v; want true, nil", revoked, err)
	}

	ttl, err := client.TTL(ctx, "test:revoked:s1").Result()
	if err != nil {
		t.Fatalf("TTL() error: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("Expected TTL within an hour, got %v", ttl)
	}
}
