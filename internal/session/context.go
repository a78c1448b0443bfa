package session

import (
	"context"

	"github.com/myrecipebook/web-gateway/internal/models"
)

// Session is the authenticated session view
type Session = models.Session

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession returns a context carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the session attached to ctx, or nil
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}
