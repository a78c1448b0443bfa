package handoff

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/models"
	"github.com/myrecipebook/web-gateway/internal/request"
	"github.com/myrecipebook/web-gateway/internal/services/auth"
	"github.com/myrecipebook/web-gateway/internal/session"
	"go.uber.org/zap"
)

// State is a step of the handoff state machine
type State string

const (
	StateAwaitingParams State = "awaiting_params"
	StateExchanging     State = "exchanging"
	StateEstablished    State = "established"
	StateFailed         State = "failed"
)

// ErrSessionEstablishment is the failure recorded when a token could not be exchanged for a session
var ErrSessionEstablishment = errors.New("failed to establish session")

const (
	// FailureMessage is shown on the login page when an exchange fails
	FailureMessage = "Failed to establish session. Please try again."
	// LoginPath is where failed or parameterless handoffs land
	LoginPath = "/"

	maxErrorParamLength = 200
)

// Params are the query parameters delivered by the backend's OAuth bridge
type Params struct {
	Token string
	Email string
	Name  string
	Error string
}

// ParamsFromQuery extracts handoff parameters from a query string
func ParamsFromQuery(q url.Values) Params {
	return Params{
		Token: strings.TrimSpace(q.Get("token")),
		Email: strings.TrimSpace(q.Get("email")),
		Name:  strings.TrimSpace(q.Get("name")),
		Error: strings.TrimSpace(q.Get("error")),
	}
}

// Result is the terminal outcome of one handoff request
type Result struct {
	State      State
	Location   string
	Suppressed bool
	Reason     string

	// SessionToken and Session are set only when this request established a new session
	SessionToken string
	Session      *session.Session
}

// IdentityVerifier verifies handoff credentials
type IdentityVerifier interface {
	Verify(ctx context.Context, creds auth.Credentials) (*auth.VerifiedIdentity, error)
}

// Handler exchanges external tokens delivered by redirect for gateway sessions.
// Each token is exchanged at most once; repeated deliveries are answered from the ledger.
type Handler struct {
	verifier    IdentityVerifier
	minter      *session.Minter
	ledger      Ledger
	publisher   events.Publisher
	logger      *zap.Logger
	landingPath string
}

// Option configures a Handler
type Option func(*Handler)

// WithLogger sets the handler's logger
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.logger = log }
}

// WithPublisher sets the auth event publisher
func WithPublisher(p events.Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithLandingPath sets where established sessions are sent
func WithLandingPath(path string) Option {
	return func(h *Handler) { h.landingPath = request.LocalPath(path, h.landingPath) }
}

// NewHandler creates a handoff handler
func NewHandler(verifier IdentityVerifier, minter *session.Minter, ledger Ledger, opts ...Option) *Handler {
	h := &Handler{
		verifier:    verifier,
		minter:      minter,
		ledger:      ledger,
		publisher:   events.NopPublisher{},
		logger:      zap.NewNop(),
		landingPath: "/myrecipes",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles GET /redirect-after-login
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := ParamsFromQuery(r.URL.Query())
	hasSession := func() bool {
		_, err := h.minter.FromRequest(r)
		return err == nil
	}

	result := h.Run(r.Context(), params, hasSession, request.ClientIP(r))

	if result.SessionToken != "" && result.Session != nil {
		h.minter.SetCookie(w, result.SessionToken, result.Session)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	http.Redirect(w, r, result.Location, http.StatusFound)
}

// Run drives the state machine for one request. hasSession is consulted only when
// the outcome depends on an existing session.
func (h *Handler) Run(ctx context.Context, p Params, hasSession func() bool, clientIP string) Result {
	switch {
	case p.Error != "":
		reason := logger.SanitizeString(p.Error, maxErrorParamLength)
		h.logger.Info("handoff_failed",
			zap.String("reason", "provider_error"),
			zap.String("provider_error", reason),
		)
		h.emit(ctx, events.TypeHandoffFailed, p, clientIP, reason)
		return Result{
			State:    StateFailed,
			Location: LoginPath + "?error=" + url.QueryEscape(reason),
			Reason:   "provider_error",
		}

	case p.Token != "" && p.Email != "":
		return h.exchange(ctx, p, hasSession, clientIP)

	case hasSession():
		return Result{State: StateEstablished, Location: h.landingPath, Reason: "existing_session"}

	default:
		h.logger.Debug("handoff_without_params")
		return Result{State: StateFailed, Location: LoginPath, Reason: "missing_params"}
	}
}

func (h *Handler) exchange(ctx context.Context, p Params, hasSession func() bool, clientIP string) Result {
	key := LedgerKey(p.Token)
	fingerprint := logger.TokenFingerprint(p.Token)

	claimed, current, err := h.ledger.Claim(ctx, key)
	if err != nil {
		// without the ledger the at-most-once guarantee cannot hold
		h.logger.Error("handoff_ledger_unavailable",
			zap.String("token_fingerprint", fingerprint),
			zap.String("error", logger.SanitizeError(err)),
		)
		h.emit(ctx, events.TypeHandoffFailed, p, clientIP, "ledger_unavailable")
		return h.failed("ledger_unavailable")
	}

	if !claimed {
		return h.suppressed(ctx, p, current, hasSession, clientIP, fingerprint)
	}

	token, s, err := h.establish(ctx, p)
	completeCtx := context.WithoutCancel(ctx)
	if err != nil {
		if cerr := h.ledger.Complete(completeCtx, key, OutcomeFailed); cerr != nil {
			h.logger.Warn("handoff_ledger_complete_failed", zap.String("error", logger.SanitizeError(cerr)))
		}
		h.logger.Warn("handoff_failed",
			zap.String("reason", "exchange_failed"),
			zap.String("token_fingerprint", fingerprint),
			zap.String("identifier", logger.MaskEmail(p.Email)),
			zap.String("error", logger.SanitizeError(err)),
		)
		h.emit(ctx, events.TypeHandoffFailed, p, clientIP, "exchange_failed")
		return h.failed("exchange_failed")
	}

	if cerr := h.ledger.Complete(completeCtx, key, OutcomeEstablished); cerr != nil {
		h.logger.Warn("handoff_ledger_complete_failed", zap.String("error", logger.SanitizeError(cerr)))
	}
	h.logger.Info("handoff_established",
		zap.String("token_fingerprint", fingerprint),
		zap.String("identifier", logger.MaskEmail(s.User.Email)),
		zap.String("session_id", s.ID),
	)
	e := events.New(events.TypeHandoffEstablished)
	e.Subject = s.User.ID
	e.Email = s.User.Email
	e.Mode = string(models.LoginModeExternal)
	e.ClientIP = clientIP
	events.Emit(ctx, h.publisher, h.logger, e)

	return Result{
		State:        StateEstablished,
		Location:     h.landingPath,
		Reason:       "exchanged",
		SessionToken: token,
		Session:      s,
	}
}

func (h *Handler) establish(ctx context.Context, p Params) (string, *session.Session, error) {
	identity, err := h.verifier.Verify(ctx, auth.Credentials{
		Identifier:  p.Email,
		Secret:      p.Token,
		DisplayName: p.Name,
		Mode:        models.LoginModeExternal,
	})
	if err != nil {
		return "", nil, errors.Join(ErrSessionEstablishment, err)
	}
	token, s, err := h.minter.Mint(identity)
	if err != nil {
		return "", nil, errors.Join(ErrSessionEstablishment, err)
	}
	return token, s, nil
}

func (h *Handler) suppressed(ctx context.Context, p Params, current Outcome, hasSession func() bool, clientIP, fingerprint string) Result {
	h.logger.Info("handoff_suppressed",
		zap.String("token_fingerprint", fingerprint),
		zap.String("recorded_outcome", string(current)),
	)
	h.emit(ctx, events.TypeHandoffSuppressed, p, clientIP, string(current))

	switch current {
	case OutcomeEstablished:
		return Result{State: StateEstablished, Location: h.landingPath, Suppressed: true, Reason: "duplicate_established"}
	case OutcomeFailed:
		r := h.failed("duplicate_failed")
		r.Suppressed = true
		return r
	default:
		if hasSession() {
			return Result{State: StateEstablished, Location: h.landingPath, Suppressed: true, Reason: "duplicate_pending"}
		}
		return Result{State: StateFailed, Location: LoginPath, Suppressed: true, Reason: "duplicate_pending"}
	}
}

func (h *Handler) failed(reason string) Result {
	return Result{
		State:    StateFailed,
		Location: LoginPath + "?error=" + url.QueryEscape(FailureMessage),
		Reason:   reason,
	}
}

func (h *Handler) emit(ctx context.Context, t events.Type, p Params, clientIP, reason string) {
	e := events.New(t)
	e.Email = p.Email
	e.Mode = string(models.LoginModeExternal)
	e.ClientIP = clientIP
	e.Reason = reason
	events.Emit(ctx, h.publisher, h.logger, e)
}
