package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/models"
	"github.com/myrecipebook/web-gateway/internal/request"
	"github.com/myrecipebook/web-gateway/internal/services/auth"
	"github.com/myrecipebook/web-gateway/internal/services/backend"
	"github.com/myrecipebook/web-gateway/internal/session"
	"github.com/myrecipebook/web-gateway/internal/validation"
	"go.uber.org/zap"
)

const (
	// MsgInvalidCredentials is the only message a failed sign-in ever reveals
	MsgInvalidCredentials = "Invalid email or password"
	// MsgServiceUnavailable is returned when the backend cannot verify credentials
	MsgServiceUnavailable = "Authentication service is unavailable. Please try again later."
)

// CredentialVerifier verifies sign-in attempts
type CredentialVerifier interface {
	Verify(ctx context.Context, creds auth.Credentials) (*auth.VerifiedIdentity, error)
}

// BackendClient is the part of the backend API the auth endpoints call directly
type BackendClient interface {
	Register(ctx context.Context, req models.RegisterRequest) error
	Logout(ctx context.Context, accessToken string) error
	RequestPasswordResetCode(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error
	GoogleLoginURL(returnURL string) string
}

// AuthConfig holds the URLs the auth endpoints redirect to
type AuthConfig struct {
	LandingPath    string
	OAuthReturnURL string
}

// AuthHandler serves the gateway's session endpoints
type AuthHandler struct {
	verifier  CredentialVerifier
	minter    *session.Minter
	backend   BackendClient
	publisher events.Publisher
	logger    *zap.Logger
	cfg       AuthConfig
}

// NewAuthHandler creates an auth handler. A nil publisher discards events.
func NewAuthHandler(verifier CredentialVerifier, minter *session.Minter, backendClient BackendClient, publisher events.Publisher, log *zap.Logger, cfg AuthConfig) *AuthHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = "/myrecipes"
	}
	return &AuthHandler{
		verifier:  verifier,
		minter:    minter,
		backend:   backendClient,
		publisher: publisher,
		logger:    log,
		cfg:       cfg,
	}
}

// RegisterRoutes registers auth routes on a router already prefixed with /api/auth.
// limit wraps credential endpoints; protect wraps endpoints that need a session.
func (h *AuthHandler) RegisterRoutes(r *mux.Router, limit, protect func(http.Handler) http.Handler) {
	if limit == nil {
		limit = passthrough
	}
	if protect == nil {
		protect = passthrough
	}

	r.Handle("/login", limit(http.HandlerFunc(h.Login))).Methods(http.MethodPost)
	r.Handle("/callback/credentials", limit(http.HandlerFunc(h.CredentialsCallback))).Methods(http.MethodPost)
	r.Handle("/register", limit(http.HandlerFunc(h.Register))).Methods(http.MethodPost)
	r.Handle("/password-reset/code", limit(http.HandlerFunc(h.RequestPasswordResetCode))).Methods(http.MethodPost)
	r.Handle("/password-reset", limit(http.HandlerFunc(h.ResetPassword))).Methods(http.MethodPost)
	r.HandleFunc("/signout", h.SignOut).Methods(http.MethodPost)
	r.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	r.Handle("/session", protect(http.HandlerFunc(h.UpdateSession))).Methods(http.MethodPost)
	r.HandleFunc("/google", h.GoogleLogin).Methods(http.MethodGet)
	r.Handle("/me", protect(http.HandlerFunc(h.GetMe))).Methods(http.MethodGet)
}

func passthrough(next http.Handler) http.Handler { return next }

// sessionView is the public session payload, shaped like the frontend's session object
type sessionView struct {
	User    models.SessionUser `json:"user"`
	Expires string             `json:"expires"`
}

type signInResponse struct {
	sessionView
	URL string `json:"url"`
}

func newSessionView(s *session.Session) sessionView {
	return sessionView{User: s.User, Expires: s.ExpiresAt.UTC().Format(time.RFC3339)}
}

// Login handles the sign-in form: credentials are always checked against the backend
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	h.signIn(w, r, auth.Credentials{
		Identifier: req.Identifier(),
		Secret:     req.Password,
		Mode:       models.LoginModePassword,
	})
}

// CredentialsCallback is the generic credentials endpoint; mode defaults to auto
func (h *AuthHandler) CredentialsCallback(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if req.Mode != "" {
		if err := validation.Validate.Var(string(req.Mode), "login_mode"); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Unsupported login mode")
			return
		}
	}
	h.signIn(w, r, auth.Credentials{
		Identifier:  req.Identifier(),
		Secret:      req.Password,
		DisplayName: req.Name,
		Mode:        req.Mode,
	})
}

func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, creds auth.Credentials) {
	ctx := r.Context()
	clientIP := request.ClientIP(r)

	identity, err := h.verifier.Verify(ctx, creds)
	if err != nil {
		e := events.New(events.TypeLoginFailed)
		e.Email = creds.Identifier
		e.Mode = string(creds.Mode.Resolve(creds.Secret))
		e.ClientIP = clientIP
		if errors.Is(err, auth.ErrServiceUnavailable) {
			e.Reason = "service_unavailable"
			events.Emit(ctx, h.publisher, h.logger, e)
			respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", MsgServiceUnavailable)
			return
		}
		e.Reason = "invalid_credentials"
		events.Emit(ctx, h.publisher, h.logger, e)
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", MsgInvalidCredentials)
		return
	}

	token, s, err := h.minter.Mint(identity)
	if err != nil {
		h.logger.Error("session_mint_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to establish session")
		return
	}
	h.minter.SetCookie(w, token, s)

	h.logger.Info("login_succeeded",
		zap.String("mode", string(identity.Mode())),
		zap.String("identifier", logger.MaskEmail(s.User.Email)),
		zap.String("session_id", s.ID),
	)
	e := events.New(events.TypeLoginSucceeded)
	e.Subject = s.User.ID
	e.Email = s.User.Email
	e.Mode = string(identity.Mode())
	e.ClientIP = clientIP
	events.Emit(ctx, h.publisher, h.logger, e)

	respondJSON(w, http.StatusOK, signInResponse{sessionView: newSessionView(s), URL: h.cfg.LandingPath})
}

// Register creates a backend account and signs the new user in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	req.Name = validation.SanitizeText(req.Name)
	req.Email = validation.NormalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.backend.Register(r.Context(), req); err != nil {
		h.respondBackendError(w, err, "Registration failed")
		return
	}

	e := events.New(events.TypeRegistered)
	e.Email = req.Email
	e.ClientIP = request.ClientIP(r)
	events.Emit(r.Context(), h.publisher, h.logger, e)

	h.signIn(w, r, auth.Credentials{
		Identifier: req.Email,
		Secret:     req.Password,
		Mode:       models.LoginModePassword,
	})
}

// SignOut revokes the session locally, asks the backend to end its session and clears the cookie.
// A failed remote logout does not prevent local sign-out.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.minter.FromRequest(r)
	h.minter.ClearCookie(w)

	if err == nil {
		if rerr := h.minter.Revoke(ctx, s); rerr != nil {
			h.logger.Warn("session_revoke_failed",
				zap.String("session_id", s.ID),
				zap.String("error", logger.SanitizeError(rerr)),
			)
		}
		if lerr := h.backend.Logout(ctx, s.User.Token); lerr != nil {
			h.logger.Warn("remote_logout_failed",
				zap.String("session_id", s.ID),
				zap.String("error", logger.SanitizeError(lerr)),
			)
		}
		e := events.New(events.TypeSignedOut)
		e.Subject = s.User.ID
		e.Email = s.User.Email
		e.ClientIP = request.ClientIP(r)
		events.Emit(ctx, h.publisher, h.logger, e)
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": "/"})
}

// GetSession returns the current session, or {} when there is none
func (h *AuthHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.minter.FromRequest(r)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Session status is temporarily unavailable")
			return
		}
		writeRawJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeRawJSON(w, http.StatusOK, newSessionView(s))
}

// UpdateSession changes display fields of the current session
func (h *AuthHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var upd models.SessionUpdate
	if err := decodeBody(r, &upd); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	token, s, err := h.minter.Update(r.Context(), h.minter.TokenFromRequest(r), upd)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrStoreUnavailable):
			respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Session status is temporarily unavailable")
		case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrSessionExpired),
			errors.Is(err, session.ErrSessionRevoked), errors.Is(err, session.ErrSessionInvalid):
			respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		default:
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		}
		return
	}
	h.minter.SetCookie(w, token, s)

	e := events.New(events.TypeSessionUpdated)
	e.Subject = s.User.ID
	e.Email = s.User.Email
	events.Emit(r.Context(), h.publisher, h.logger, e)

	writeRawJSON(w, http.StatusOK, newSessionView(s))
}

// GoogleLogin sends the browser to the backend's OAuth bridge
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.backend.GoogleLoginURL(h.cfg.OAuthReturnURL), http.StatusFound)
}

type resetCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordResetCode asks the backend to email a reset code
func (h *AuthHandler) RequestPasswordResetCode(w http.ResponseWriter, r *http.Request) {
	var req resetCodeRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.backend.RequestPasswordResetCode(r.Context(), req.Email); err != nil {
		h.respondBackendError(w, err, "Failed to send reset code")
		return
	}

	e := events.New(events.TypePasswordResetRequested)
	e.Email = req.Email
	e.ClientIP = request.ClientIP(r)
	events.Emit(r.Context(), h.publisher, h.logger, e)

	respondJSON(w, http.StatusOK, map[string]string{"message": "Reset code sent"})
}

// ResetPassword sets a new password using an emailed code
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if err := h.backend.ResetPassword(r.Context(), req); err != nil {
		h.respondBackendError(w, err, "Password reset failed")
		return
	}

	e := events.New(events.TypePasswordResetCompleted)
	e.Email = req.Email
	e.ClientIP = request.ClientIP(r)
	events.Emit(r.Context(), h.publisher, h.logger, e)

	respondJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// GetMe returns the signed-in user without tokens
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"id":      s.User.ID,
		"name":    s.User.Name,
		"email":   s.User.Email,
		"expires": s.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) respondBackendError(w http.ResponseWriter, err error, message string) {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		respondJSONErrorDetails(w, http.StatusBadRequest, "Bad Request", message, apiErr.Messages)
		return
	}
	h.logger.Warn("backend_request_failed",
		zap.String("operation", message),
		zap.String("error", logger.SanitizeError(err)),
	)
	respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", MsgServiceUnavailable)
}
