package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/request"
	"github.com/myrecipebook/web-gateway/internal/session"
	"go.uber.org/zap"
)

// Status is the resolved authentication status of a request
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Action is what the guard does with a request in a given status
type Action int

const (
	ActionShowPlaceholder Action = iota
	ActionRenderChildren
	ActionRedirectToLogin
)

// Decide maps a status to the guard's action. Only an authenticated status renders children.
func Decide(status Status) Action {
	switch status {
	case StatusAuthenticated:
		return ActionRenderChildren
	case StatusUnauthenticated:
		return ActionRedirectToLogin
	default:
		return ActionShowPlaceholder
	}
}

const (
	defaultReadTimeout = 2 * time.Second
	defaultRetryAfter  = 2 * time.Second
	defaultLoginPath   = "/"
)

// Guard gates a route subtree on a valid session
type Guard struct {
	minter      *session.Minter
	logger      *zap.Logger
	readTimeout time.Duration
	retryAfter  time.Duration
	loginPath   string
}

// Option configures a Guard
type Option func(*Guard)

// WithLogger sets the guard's logger
func WithLogger(log *zap.Logger) Option {
	return func(g *Guard) { g.logger = log }
}

// WithReadTimeout bounds how long status resolution may wait on the session store
func WithReadTimeout(d time.Duration) Option {
	return func(g *Guard) { g.readTimeout = d }
}

// New creates a guard backed by minter
func New(minter *session.Minter, opts ...Option) *Guard {
	g := &Guard{
		minter:      minter,
		logger:      zap.NewNop(),
		readTimeout: defaultReadTimeout,
		retryAfter:  defaultRetryAfter,
		loginPath:   defaultLoginPath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve determines the request's status. The session is returned only when authenticated.
// A session store that cannot answer in time leaves the status loading.
func (g *Guard) Resolve(r *http.Request) (Status, *session.Session, error) {
	token := g.minter.TokenFromRequest(r)
	if token == "" {
		return StatusUnauthenticated, nil, session.ErrNoSession
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.readTimeout)
	defer cancel()

	s, err := g.minter.Read(ctx, token)
	switch {
	case err == nil:
		return StatusAuthenticated, s, nil
	case errors.Is(err, session.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return StatusLoading, nil, err
	default:
		return StatusUnauthenticated, nil, err
	}
}

// Middleware serves the wrapped subtree only to authenticated requests
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, s, err := g.Resolve(r)

		switch Decide(status) {
		case ActionRenderChildren:
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))

		case ActionRedirectToLogin:
			if err != nil && !errors.Is(err, session.ErrNoSession) {
				// stale cookie: expired, revoked or tampered
				g.minter.ClearCookie(w)
				g.logger.Info("guard_session_rejected",
					zap.String("path", logger.SanitizePath(r.URL.Path)),
					zap.String("error", logger.SanitizeError(err)),
				)
			}
			g.unauthenticated(w, r)

		default:
			g.logger.Warn("guard_session_status_unavailable",
				zap.String("path", logger.SanitizePath(r.URL.Path)),
				zap.String("error", logger.SanitizeError(err)),
			)
			g.placeholder(w, r)
		}
	})
}

func (g *Guard) unauthenticated(w http.ResponseWriter, r *http.Request) {
	if request.WantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success":   false,
			"error":     "Unauthorized",
			"message":   "Authentication required",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, g.loginPath, http.StatusFound)
}

func (g *Guard) placeholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(int(g.retryAfter.Seconds())))
	w.Header().Set("Cache-Control", "no-store")

	if request.WantsJSON(r) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": string(StatusLoading)})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(loadingPage))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

const loadingPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="2">
<title>Loading</title>
<style>
body{display:flex;align-items:center;justify-content:center;height:100vh;margin:0}
.spinner{width:40px;height:40px;border:4px solid #ddd;border-top-color:#555;border-radius:50%;animation:spin 1s linear infinite}
@keyframes spin{to{transform:rotate(360deg)}}
</style>
</head>
<body><div class="spinner" role="status" aria-label="Loading"></div></body>
</html>
`
