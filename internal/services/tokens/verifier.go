package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned when an external token fails signature, expiry or issuer checks
var ErrInvalidToken = errors.New("invalid external token")

// ExternalClaims are the identity claims carried by a backend-issued external token
type ExternalClaims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// Verifier checks external tokens issued by the backend's OAuth bridge against its JWKS
type Verifier struct {
	jwks    *JWKSManager
	jwksURL string
	issuer  string
	skew    time.Duration
	clock   func() time.Time
}

// NewVerifier creates a verifier. An empty issuer disables the issuer check.
func NewVerifier(jwks *JWKSManager, jwksURL, issuer string) *Verifier {
	return &Verifier{
		jwks:    jwks,
		jwksURL: jwksURL,
		issuer:  issuer,
		skew:    30 * time.Second,
		clock:   time.Now,
	}
}

// Verify validates tokenString and extracts its identity claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*ExternalClaims, error) {
	keys, err := v.jwks.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}
	// the backend rotated its signing key: refetch before rejecting
	if kid := keyID(tokenString); kid != "" {
		if _, found := keys.LookupKeyID(kid); !found {
			keys, err = v.jwks.Refresh(ctx, v.jwksURL)
			if err != nil {
				return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
			}
		}
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.clock)),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &ExternalClaims{
		Subject:   token.Subject(),
		ExpiresAt: token.Expiration(),
	}
	if email, ok := token.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	if name, ok := token.Get("name"); ok {
		if s, ok := name.(string); ok {
			claims.Name = s
		}
	}

	return claims, nil
}

// keyID returns the kid header of a compact JWS, or "" when it has none or does not parse
func keyID(tokenString string) string {
	msg, err := jws.Parse([]byte(tokenString))
	if err != nil || len(msg.Signatures()) == 0 {
		return ""
	}
	return msg.Signatures()[0].ProtectedHeaders().KeyID()
}
