package middleware

import (
	"net/http"
	"strings"
)

// authPathPrefix marks responses that carry session material
const authPathPrefix = "/api/auth/"

// SecurityHeaders sets security headers on all responses.
// The CSP allows the inline styles of the guard's loading page and nothing else inline.
// Auth API responses are never cached by browsers or proxies.
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'")

			if strings.HasPrefix(r.URL.Path, authPathPrefix) {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
			}

			// only over TLS, so local http development is unaffected
			if enableHSTS && r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
