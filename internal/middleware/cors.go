package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

const defaultFrontendOrigin = "http://localhost:3000"

// ParseOrigins splits a comma-separated FRONTEND_URL into distinct origins.
// The local frontend origin is always allowed.
func ParseOrigins(frontendURL string) []string {
	origins := []string{defaultFrontendOrigin}
	seen := map[string]bool{defaultFrontendOrigin: true}
	for _, origin := range strings.Split(frontendURL, ",") {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		origins = append(origins, trimmed)
	}
	return origins
}

// CORS allows the configured frontend origins to call the gateway with credentials
func CORS(allowedOrigins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger != nil {
		logger.Info("cors_configured", zap.Strings("allowed_origins", allowedOrigins))
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}
