package tokens

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	defaultJWKSTTL = time.Hour
	// minRefreshInterval bounds how often an unknown key ID can force a refetch
	minRefreshInterval = 10 * time.Second
)

type cachedSet struct {
	keys      jwk.Set
	fetchedAt time.Time
	expires   time.Time
}

// JWKSManager fetches the backend's signing keys and caches them per URL
type JWKSManager struct {
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedSet
}

// NewJWKSManager creates a JWKS manager. A nil client gets a 10s timeout client.
func NewJWKSManager(httpClient *http.Client, ttl time.Duration) *JWKSManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	return &JWKSManager{
		httpClient: httpClient,
		ttl:        ttl,
		now:        time.Now,
		cache:      make(map[string]cachedSet),
	}
}

// GetJWKS retrieves the key set at jwksURL, served from cache while fresh
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.RLock()
	entry, ok := m.cache[jwksURL]
	m.mu.RUnlock()
	if ok && m.now().Before(entry.expires) {
		return entry.keys, nil
	}

	keys, err := m.fetchJWKS(ctx, jwksURL)
	if err != nil {
		return nil, err
	}

	now := m.now()
	m.mu.Lock()
	m.cache[jwksURL] = cachedSet{keys: keys, fetchedAt: now, expires: now.Add(m.ttl)}
	m.mu.Unlock()

	return keys, nil
}

// Refresh refetches the key set ahead of its TTL, typically after a token names a key ID
// the cached set does not contain. A set fetched within minRefreshInterval is returned as is.
func (m *JWKSManager) Refresh(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.RLock()
	entry, ok := m.cache[jwksURL]
	m.mu.RUnlock()
	if ok && m.now().Sub(entry.fetchedAt) < minRefreshInterval {
		return entry.keys, nil
	}

	m.Invalidate(jwksURL)
	return m.GetJWKS(ctx, jwksURL)
}

// Invalidate drops the cached set so the next lookup refetches (key rotation)
func (m *JWKSManager) Invalidate(jwksURL string) {
	m.mu.Lock()
	delete(m.cache, jwksURL)
	m.mu.Unlock()
}

func (m *JWKSManager) fetchJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return keys, nil
}
