package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/myrecipebook/web-gateway/internal/config"
	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/guard"
	"github.com/myrecipebook/web-gateway/internal/handlers"
	"github.com/myrecipebook/web-gateway/internal/handoff"
	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/middleware"
	"github.com/myrecipebook/web-gateway/internal/services/auth"
	"github.com/myrecipebook/web-gateway/internal/services/backend"
	"github.com/myrecipebook/web-gateway/internal/services/tokens"
	"github.com/myrecipebook/web-gateway/internal/session"
	"github.com/myrecipebook/web-gateway/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New("server", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("auth_url", cfg.AuthURL),
		zap.Bool("secure_cookies", cfg.SecureCookies),
		zap.Bool("redis_enabled", cfg.RedisURL != ""),
		zap.Bool("rabbitmq_enabled", cfg.RabbitMQURL != ""),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.Config{
			ServiceName:    logger.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
		})
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	healthChecker := handlers.NewHealthChecker(version)

	// Redis backs the handoff ledger, the revocation list and the rate limiter.
	// Without it every replica keeps its own in-memory state.
	var redisClient *redis.Client
	var revocations session.RevocationStore = session.NewMemoryRevocationStore()
	var ledger handoff.Ledger = handoff.NewMemoryLedger(cfg.HandoffLedgerTTL)
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		revocations = session.NewRedisRevocationStore(redisClient, "")
		ledger = handoff.NewRedisLedger(redisClient, "", cfg.HandoffLedgerTTL)
		healthChecker.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		zapLogger.Info("connected_to_redis")
	} else {
		zapLogger.Warn("redis_not_configured_using_in_memory_stores")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rabbit, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("rabbitmq_unavailable_auth_events_disabled", zap.Error(err))
		} else {
			publisher = rabbit
			defer func() {
				if err := rabbit.Close(); err != nil {
					zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
				}
			}()
			healthChecker.AddCheck("rabbitmq", rabbit.HealthCheck)
			zapLogger.Info("connected_to_rabbitmq")
		}
	}

	backendClient := backend.NewClient(cfg.APIBaseURL, cfg.BackendTimeout)
	healthChecker.AddCheck("backend", backendClient.Ping)

	var tokenVerifier auth.TokenVerifier
	if cfg.BackendJWKSURL != "" {
		jwks := tokens.NewJWKSManager(&http.Client{Timeout: cfg.BackendTimeout}, 0)
		tokenVerifier = tokens.NewVerifier(jwks, cfg.BackendJWKSURL, "")
		zapLogger.Info("external_token_verification_enabled", zap.String("jwks_url", cfg.BackendJWKSURL))
	}
	verifier := auth.NewVerifier(backendClient, tokenVerifier, zapLogger)

	minter, err := session.NewMinter(cfg.SessionSecret, cfg.SessionMaxAge, revocations,
		session.WithSecureCookies(cfg.SecureCookies),
	)
	if err != nil {
		zapLogger.Fatal("failed_to_create_session_minter", zap.Error(err))
	}

	sessionGuard := guard.New(minter, guard.WithLogger(zapLogger))
	handoffHandler := handoff.NewHandler(verifier, minter, ledger,
		handoff.WithLogger(zapLogger),
		handoff.WithPublisher(publisher),
		handoff.WithLandingPath(cfg.LandingPath),
	)
	authHandler := handlers.NewAuthHandler(verifier, minter, backendClient, publisher, zapLogger, handlers.AuthConfig{
		LandingPath:    cfg.LandingPath,
		OAuthReturnURL: cfg.OAuthReturnURL(),
	})
	landingHandler := handlers.NewLandingHandler(cfg.LandingPath, cfg.StaticDir, zapLogger)
	openAPIHandler, err := handlers.NewOpenAPIHandler()
	if err != nil {
		zapLogger.Fatal("failed_to_load_openapi_spec", zap.Error(err))
	}

	loginRateLimit, err := middleware.RateLimit(cfg.LoginRateLimit, redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order: the first registered is outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(logger.ServiceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.FrontendURL), zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", healthChecker.Version).Methods(http.MethodGet)
	openAPIHandler.RegisterRoutes(r)

	r.Handle("/redirect-after-login", loginRateLimit(handoffHandler)).Methods(http.MethodGet)

	authHandler.RegisterRoutes(r.PathPrefix("/api/auth").Subrouter(), loginRateLimit, sessionGuard.Middleware)

	r.PathPrefix(cfg.LandingPath).Handler(sessionGuard.Middleware(landingHandler)).Methods(http.MethodGet, http.MethodHead)

	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}

	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   35 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

func connectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// connectRabbitMQ retries with exponential backoff to ride out broker startup
func connectRabbitMQ(amqpURL string, zapLogger *zap.Logger) (*events.RabbitMQPublisher, error) {
	const maxRetries = 5
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		p, err := events.NewRabbitMQPublisher(amqpURL)
		if err == nil {
			return p, nil
		}
		lastErr = err

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}
	return nil, lastErr
}
