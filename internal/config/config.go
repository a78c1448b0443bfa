package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxSessionAge is the hard ceiling for session lifetime (30 days)
	MaxSessionAge = 30 * 24 * time.Hour
	// MinSessionSecretLength is the minimum accepted length of SESSION_SECRET
	MinSessionSecretLength = 32
)

// Config holds application configuration
type Config struct {
	ServerPort       string
	APIBaseURL       string
	AuthURL          string
	FrontendURL      string
	SessionSecret    string
	SessionMaxAge    time.Duration
	SecureCookies    bool
	LandingPath      string
	StaticDir        string
	BackendJWKSURL   string
	BackendTimeout   time.Duration
	RedisURL         string
	RabbitMQURL      string
	LoginRateLimit   string
	HandoffLedgerTTL time.Duration
	EnableHSTS       bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
}

// Load loads configuration from environment variables.
// Missing required values are returned as errors and are fatal at startup.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		APIBaseURL:       strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
		AuthURL:          strings.TrimRight(getEnv("AUTH_URL", ""), "/"),
		FrontendURL:      getEnv("FRONTEND_URL", "http://localhost:3000"),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		SessionMaxAge:    getEnvDuration("SESSION_MAX_AGE", MaxSessionAge),
		LandingPath:      getEnv("LANDING_PATH", "/myrecipes"),
		StaticDir:        getEnv("STATIC_DIR", ""),
		BackendJWKSURL:   getEnv("BACKEND_JWKS_URL", ""),
		BackendTimeout:   getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		RedisURL:         getEnv("REDIS_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		LoginRateLimit:   getEnv("LOGIN_RATE_LIMIT", "10-M"),
		HandoffLedgerTTL: getEnvDuration("HANDOFF_LEDGER_TTL", 10*time.Minute),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("AUTH_URL is required (public URL of this gateway, used for the OAuth return URL)")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLength)
	}

	authURL, err := url.Parse(cfg.AuthURL)
	if err != nil || authURL.Scheme == "" || authURL.Host == "" {
		return nil, fmt.Errorf("AUTH_URL must be an absolute URL, got %q", cfg.AuthURL)
	}
	if _, err := url.Parse(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}

	// Secure cookies follow the public scheme unless explicitly overridden
	cfg.SecureCookies = getEnvBool("SECURE_COOKIES", authURL.Scheme == "https")

	if cfg.SessionMaxAge <= 0 || cfg.SessionMaxAge > MaxSessionAge {
		cfg.SessionMaxAge = MaxSessionAge
	}
	if !strings.HasPrefix(cfg.LandingPath, "/") {
		cfg.LandingPath = "/" + cfg.LandingPath
	}

	return cfg, nil
}

// OAuthReturnURL is the URL the backend redirects to after completing a third-party login
func (c *Config) OAuthReturnURL() string {
	return c.AuthURL + "/redirect-after-login"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("720h") or a plain number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
