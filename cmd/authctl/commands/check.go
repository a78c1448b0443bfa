package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/myrecipebook/web-gateway/internal/config"
	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/services/backend"
	"github.com/myrecipebook/web-gateway/internal/services/tokens"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check gateway configuration and dependencies",
		Long:  "Load the gateway configuration and verify that the backend API, Redis, RabbitMQ and the JWKS endpoint are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Fprintln(out, "✓ Configuration is valid")
			fmt.Fprintf(out, "  Backend API: %s\n", cfg.APIBaseURL)
			fmt.Fprintf(out, "  OAuth return URL: %s\n", cfg.OAuthReturnURL())
			fmt.Fprintf(out, "  Secure cookies: %v\n", cfg.SecureCookies)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := backend.NewClient(cfg.APIBaseURL, cfg.BackendTimeout)
			fmt.Fprintf(out, "\nTesting backend API: %s\n", client.BaseURL())
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("backend API is unreachable: %w", err)
			}
			fmt.Fprintln(out, "✓ Backend API is reachable")

			if cfg.RedisURL != "" {
				fmt.Fprintln(out, "\nTesting Redis")
				rdb, err := connectRedis(ctx, cfg.RedisURL)
				if err != nil {
					return err
				}
				_ = rdb.Close()
				fmt.Fprintln(out, "✓ Redis is reachable")
			} else {
				fmt.Fprintln(out, "\n- Redis not configured (in-memory ledger and revocation list)")
			}

			if cfg.RabbitMQURL != "" {
				fmt.Fprintln(out, "\nTesting RabbitMQ")
				p, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
				if err != nil {
					return err
				}
				herr := p.HealthCheck(ctx)
				_ = p.Close()
				if herr != nil {
					return fmt.Errorf("rabbitmq health check failed: %w", herr)
				}
				fmt.Fprintln(out, "✓ RabbitMQ is reachable")
			} else {
				fmt.Fprintln(out, "\n- RabbitMQ not configured (auth events disabled)")
			}

			if cfg.BackendJWKSURL != "" {
				fmt.Fprintf(out, "\nTesting JWKS endpoint: %s\n", cfg.BackendJWKSURL)
				jwks := tokens.NewJWKSManager(&http.Client{Timeout: cfg.BackendTimeout}, 0)
				set, err := jwks.GetJWKS(ctx, cfg.BackendJWKSURL)
				if err != nil {
					return fmt.Errorf("failed to fetch JWKS: %w", err)
				}
				fmt.Fprintf(out, "✓ JWKS endpoint returned %d key(s)\n", set.Len())
			}

			fmt.Fprintln(out, "\n✓ Gateway check passed")
			return nil
		},
	}

	return cmd
}
