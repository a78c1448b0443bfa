package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/myrecipebook/web-gateway/internal/session"
	"go.uber.org/zap"
)

var landingPage = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>My Recipes</title></head>
<body>
<main>
<h1>My Recipes</h1>
<p>Signed in as {{if .Name}}{{.Name}} ({{.Email}}){{else}}{{.Email}}{{end}}</p>
<form method="post" action="/api/auth/signout"><button type="submit">Sign out</button></form>
</main>
</body>
</html>
`))

// LandingHandler serves the guarded landing subtree. With a static directory it serves the
// frontend build; otherwise it renders a minimal signed-in page.
type LandingHandler struct {
	prefix string
	files  http.Handler
	logger *zap.Logger
}

// NewLandingHandler creates a landing handler mounted at prefix
func NewLandingHandler(prefix, staticDir string, log *zap.Logger) *LandingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &LandingHandler{prefix: strings.TrimRight(prefix, "/"), logger: log}
	if staticDir != "" {
		h.files = http.StripPrefix(h.prefix, http.FileServer(http.Dir(staticDir)))
	}
	return h
}

// ServeHTTP requires a session in the request context; the guard puts it there
func (h *LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	w.Header().Set("Cache-Control", "private, no-store")
	if h.files != nil {
		h.files.ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingPage.Execute(w, s.User); err != nil {
		h.logger.Error("landing_render_failed", zap.Error(err))
	}
}
