package session

import (
	"net/http"
)

const (
	// CookieName is the session cookie name on plain-http deployments
	CookieName = "next-auth.session-token"
	// SecureCookieName is the session cookie name when cookies are Secure
	SecureCookieName = "__Secure-next-auth.session-token"
)

// CookieNameFor returns the session cookie name for the given cookie security
func CookieNameFor(secure bool) string {
	if secure {
		return SecureCookieName
	}
	return CookieName
}

// CookieName returns the cookie name this minter reads and writes
func (m *Minter) CookieName() string {
	return CookieNameFor(m.secure)
}

// SetCookie writes the session cookie for token, expiring with the session
func (m *Minter) SetCookie(w http.ResponseWriter, token string, s *Session) {
	maxAge := int(s.ExpiresAt.Sub(m.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt.UTC(),
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie
func (m *Minter) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the session token carried by r, or "" when absent
func (m *Minter) TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(m.CookieName())
	if err != nil {
		return ""
	}
	return c.Value
}

// FromRequest reads and validates the session carried by r
func (m *Minter) FromRequest(r *http.Request) (*Session, error) {
	return m.Read(r.Context(), m.TokenFromRequest(r))
}
