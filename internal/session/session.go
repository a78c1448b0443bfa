package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/myrecipebook/web-gateway/internal/models"
	"github.com/myrecipebook/web-gateway/internal/services/auth"
	"github.com/myrecipebook/web-gateway/internal/validation"
)

// MaxAge is the ceiling on session lifetime
const MaxAge = 30 * 24 * time.Hour

const (
	issuer = "recipebook-gateway"

	claimEmail        = "email"
	claimName         = "name"
	claimAccessToken  = "accessToken"
	claimRefreshToken = "refreshToken"
)

var (
	// ErrNoSession is returned when the request carries no session token
	ErrNoSession = errors.New("no session")
	// ErrSessionExpired is returned for a well-formed session past its expiry
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked is returned for a session that was signed out
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionInvalid is returned for tokens that fail decryption, signature or schema checks
	ErrSessionInvalid = errors.New("invalid session")
	// ErrStoreUnavailable is returned when revocation status cannot be determined
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Minter issues and reads session tokens: an HS256-signed JWT wrapped in a dir/A256GCM JWE
type Minter struct {
	signingKey  []byte
	encryptKey  []byte
	maxAge      time.Duration
	secure      bool
	revocations RevocationStore
	now         func() time.Time
}

// Option configures a Minter
type Option func(*Minter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Minter) {
		m.now = now
	}
}

// WithSecureCookies selects the __Secure- cookie name and the Secure attribute
func WithSecureCookies(secure bool) Option {
	return func(m *Minter) {
		m.secure = secure
	}
}

// NewMinter creates a session minter. maxAge is clamped to (0, MaxAge].
func NewMinter(secret string, maxAge time.Duration, revocations RevocationStore, opts ...Option) (*Minter, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	if maxAge <= 0 || maxAge > MaxAge {
		maxAge = MaxAge
	}
	if revocations == nil {
		revocations = NewMemoryRevocationStore()
	}
	encKey := sha256.Sum256([]byte(secret))

	m := &Minter{
		signingKey:  []byte(secret),
		encryptKey:  encKey[:],
		maxAge:      maxAge,
		revocations: revocations,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MaxAge returns the configured session lifetime
func (m *Minter) MaxAge() time.Duration {
	return m.maxAge
}

// Mint creates a session for a verified identity and returns its encoded token
func (m *Minter) Mint(identity *auth.VerifiedIdentity) (string, *Session, error) {
	if identity == nil {
		return "", nil, fmt.Errorf("mint requires a verified identity")
	}
	claim := identity.Claim()

	issuedAt := m.now().Truncate(time.Second)
	s := &Session{
		ID: uuid.NewString(),
		User: models.SessionUser{
			ID:           claim.SubjectID,
			Name:         claim.DisplayName,
			Email:        claim.Email,
			Token:        claim.AccessToken,
			RefreshToken: claim.RefreshToken,
		},
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(m.maxAge),
	}

	token, err := m.encode(s)
	if err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Read decodes token and checks expiry and revocation
func (m *Minter) Read(ctx context.Context, token string) (*Session, error) {
	s, err := m.Decode(token)
	if err != nil {
		return nil, err
	}
	if s.ExpiredAt(m.now()) {
		return nil, ErrSessionExpired
	}

	revoked, err := m.revocations.IsRevoked(ctx, s.ID)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}
	return s, nil
}

// Decode verifies the token's encryption, signature and schema without checking expiry or revocation
func (m *Minter) Decode(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	signed, err := jwe.Decrypt([]byte(token), jwe.WithKey(jwa.DIRECT, m.encryptKey))
	if err != nil {
		return nil, errors.Join(ErrSessionInvalid, err)
	}

	tok, err := jwt.Parse(signed, jwt.WithKey(jwa.HS256, m.signingKey), jwt.WithValidate(false))
	if err != nil {
		return nil, errors.Join(ErrSessionInvalid, err)
	}
	if err := jwt.Validate(tok, jwt.WithIssuer(issuer), jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(jwt.JwtIDKey), jwt.WithClock(jwt.ClockFunc(tok.IssuedAt))); err != nil {
		return nil, errors.Join(ErrSessionInvalid, err)
	}

	s := &Session{
		ID: tok.JwtID(),
		User: models.SessionUser{
			ID:           tok.Subject(),
			Name:         stringClaim(tok, claimName),
			Email:        stringClaim(tok, claimEmail),
			Token:        stringClaim(tok, claimAccessToken),
			RefreshToken: stringClaim(tok, claimRefreshToken),
		},
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if s.ExpiresAt.Sub(s.IssuedAt) > MaxAge {
		return nil, errors.Join(ErrSessionInvalid, errors.New("session lifetime exceeds maximum"))
	}
	if err := validation.Struct(s.User); err != nil {
		return nil, errors.Join(ErrSessionInvalid, err)
	}
	return s, nil
}

// Update applies display field changes to an existing session and re-encodes it.
// The session keeps its ID and expiry.
func (m *Minter) Update(ctx context.Context, token string, upd models.SessionUpdate) (string, *Session, error) {
	if err := validation.Struct(upd); err != nil {
		return "", nil, fmt.Errorf("invalid session update: %w", err)
	}
	s, err := m.Read(ctx, token)
	if err != nil {
		return "", nil, err
	}

	if upd.Name != nil {
		s.User.Name = validation.SanitizeText(*upd.Name)
	}
	if upd.Email != nil {
		s.User.Email = validation.NormalizeEmail(*upd.Email)
	}
	if err := validation.Struct(s.User); err != nil {
		return "", nil, fmt.Errorf("invalid session update: %w", err)
	}

	updated, err := m.encode(s)
	if err != nil {
		return "", nil, err
	}
	return updated, s, nil
}

// Revoke marks the session as signed out until it would have expired
func (m *Minter) Revoke(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return ErrNoSession
	}
	if err := m.revocations.Revoke(ctx, s.ID, s.ExpiresAt); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (m *Minter) encode(s *Session) (string, error) {
	tok := jwt.New()
	for key, value := range map[string]any{
		jwt.JwtIDKey:      s.ID,
		jwt.SubjectKey:    s.User.ID,
		jwt.IssuerKey:     issuer,
		jwt.IssuedAtKey:   s.IssuedAt,
		jwt.ExpirationKey: s.ExpiresAt,
		claimEmail:        s.User.Email,
		claimName:         s.User.Name,
		claimAccessToken:  s.User.Token,
		claimRefreshToken: s.User.RefreshToken,
	} {
		if err := tok.Set(key, value); err != nil {
			return "", fmt.Errorf("failed to set claim %s: %w", key, err)
		}
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.signingKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}

	encrypted, err := jwe.Encrypt(signed, jwe.WithKey(jwa.DIRECT, m.encryptKey), jwe.WithContentEncryption(jwa.A256GCM))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt session: %w", err)
	}
	return string(encrypted), nil
}

func stringClaim(tok jwt.Token, key string) string {
	v, ok := tok.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
