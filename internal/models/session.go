package models

import "time"

// SessionUser is the public view of the authenticated user carried by a session.
// Field names follow the session payload the frontend already consumes.
type SessionUser struct {
	ID           string `json:"id" validate:"required,max=128"`
	Name         string `json:"name,omitempty" validate:"max=256"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Token        string `json:"token" validate:"required"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Session is a signed, time-bounded proof of authentication
type Session struct {
	ID        string      `json:"-"`
	User      SessionUser `json:"user"`
	IssuedAt  time.Time   `json:"issuedAt"`
	ExpiresAt time.Time   `json:"expires"`
}

// ExpiredAt reports whether the session is no longer valid at t
func (s *Session) ExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionUpdate carries the display fields a signed-in user may change without re-authenticating
type SessionUpdate struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=256"`
	Email *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}
