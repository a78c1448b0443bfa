package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/models"
	"github.com/myrecipebook/web-gateway/internal/services/backend"
	"github.com/myrecipebook/web-gateway/internal/services/tokens"
	"github.com/myrecipebook/web-gateway/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/myrecipebook/web-gateway/internal/services/auth"

var (
	// ErrInvalidCredentials is returned when the identity could not be verified
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrServiceUnavailable is returned when verification could not be attempted
	ErrServiceUnavailable = errors.New("authentication service unavailable")
)

// Credentials is one sign-in attempt as submitted by the caller
type Credentials struct {
	Identifier  string
	Secret      string
	DisplayName string
	Mode        models.LoginMode
}

// VerifiedIdentity is an identity claim that passed verification.
// Only Verifier can produce one, so holding it proves a successful Verify call.
type VerifiedIdentity struct {
	claim      models.IdentityClaim
	mode       models.LoginMode
	verifiedAt time.Time
}

// Claim returns a copy of the verified claim
func (v *VerifiedIdentity) Claim() models.IdentityClaim {
	return v.claim
}

// Mode returns the concrete mode the identity was verified with
func (v *VerifiedIdentity) Mode() models.LoginMode {
	return v.mode
}

// VerifiedAt returns when verification succeeded
func (v *VerifiedIdentity) VerifiedAt() time.Time {
	return v.verifiedAt
}

// LoginClient is the part of the backend client used for password verification
type LoginClient interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
}

// TokenVerifier checks external tokens; optional
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*tokens.ExternalClaims, error)
}

// Verifier turns submitted credentials into a VerifiedIdentity
type Verifier struct {
	backend LoginClient
	tokens  TokenVerifier
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewVerifier creates a credential verifier. tokenVerifier may be nil, in which case
// external tokens are accepted as opaque bearer strings.
func NewVerifier(backendClient LoginClient, tokenVerifier TokenVerifier, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		backend: backendClient,
		tokens:  tokenVerifier,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Verify checks creds and returns the verified identity.
// Errors are ErrInvalidCredentials or ErrServiceUnavailable (possibly wrapped).
func (v *Verifier) Verify(ctx context.Context, creds Credentials) (*VerifiedIdentity, error) {
	identifier := validation.NormalizeEmail(creds.Identifier)
	mode := creds.Mode.Resolve(creds.Secret)

	ctx, span := v.tracer.Start(ctx, "auth.verify", trace.WithAttributes(
		attribute.String("auth.mode", string(mode)),
	))
	defer span.End()

	if identifier == "" || creds.Secret == "" {
		span.SetStatus(codes.Error, "missing credentials")
		v.logger.Info("credential_verification_rejected",
			zap.String("mode", string(mode)),
			zap.String("reason", "missing_credentials"),
		)
		return nil, ErrInvalidCredentials
	}

	var (
		claim models.IdentityClaim
		err   error
	)
	switch mode {
	case models.LoginModeExternal:
		claim, err = v.verifyExternal(ctx, identifier, creds)
	default:
		claim, err = v.verifyPassword(ctx, identifier, creds.Secret)
	}
	if err == nil {
		claim.DisplayName = validation.SanitizeText(claim.DisplayName)
		if verr := validation.Struct(claim); verr != nil {
			err = errors.Join(ErrInvalidCredentials, verr)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		level := zap.InfoLevel
		if errors.Is(err, ErrServiceUnavailable) {
			level = zap.WarnLevel
		}
		v.logger.Log(level, "credential_verification_failed",
			zap.String("mode", string(mode)),
			zap.String("identifier", logger.MaskEmail(identifier)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil, err
	}

	v.logger.Info("credential_verification_succeeded",
		zap.String("mode", string(mode)),
		zap.String("subject_id", logger.SanitizeString(claim.SubjectID, logger.MaxIdentifierLength)),
		zap.String("identifier", logger.MaskEmail(claim.Email)),
	)

	return &VerifiedIdentity{claim: claim, mode: mode, verifiedAt: v.now()}, nil
}

// verifyExternal never calls the login endpoint; the secret is the backend's bearer token
func (v *Verifier) verifyExternal(ctx context.Context, identifier string, creds Credentials) (models.IdentityClaim, error) {
	name := strings.TrimSpace(creds.DisplayName)
	if name == "" {
		name = identifier
	}
	claim := models.IdentityClaim{
		SubjectID:    models.ExternalSubjectID,
		DisplayName:  name,
		Email:        identifier,
		AccessToken:  creds.Secret,
		RefreshToken: "",
	}

	if v.tokens == nil {
		return claim, nil
	}

	ext, err := v.tokens.Verify(ctx, creds.Secret)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			return claim, errors.Join(ErrInvalidCredentials, err)
		}
		return claim, errors.Join(ErrServiceUnavailable, err)
	}
	if ext.Email != "" && !strings.EqualFold(ext.Email, identifier) {
		return claim, errors.Join(ErrInvalidCredentials, errors.New("token email does not match identifier"))
	}
	if ext.Subject != "" {
		claim.SubjectID = ext.Subject
	}
	if ext.Name != "" {
		claim.DisplayName = ext.Name
	}
	return claim, nil
}

func (v *Verifier) verifyPassword(ctx context.Context, identifier, password string) (models.IdentityClaim, error) {
	if v.backend == nil {
		return models.IdentityClaim{}, ErrServiceUnavailable
	}

	resp, err := v.backend.Login(ctx, identifier, password)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrUnavailable),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, context.Canceled):
			return models.IdentityClaim{}, errors.Join(ErrServiceUnavailable, err)
		default:
			return models.IdentityClaim{}, errors.Join(ErrInvalidCredentials, err)
		}
	}

	claim := models.IdentityClaim{
		SubjectID:   resp.ID,
		DisplayName: resp.Name,
		Email:       resp.Email,
	}
	if resp.ResponseToken != nil {
		claim.AccessToken = resp.ResponseToken.Token
		claim.RefreshToken = resp.ResponseToken.RefreshToken
	}
	return claim, nil
}
