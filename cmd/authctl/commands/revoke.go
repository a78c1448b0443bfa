package commands

import (
	"fmt"

	"github.com/myrecipebook/web-gateway/internal/config"
	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRevokeCmd creates the revoke command
func NewRevokeCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke [token|-]",
		Short: "Revoke a session",
		Long:  "Add a session to the shared revocation list so every gateway replica rejects it. Requires REDIS_URL.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required: in-memory revocations are local to each server process")
			}
			token, err := tokenArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rdb, err := connectRedis(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			defer func() {
				_ = rdb.Close()
			}()

			minter, err := newMinter(cfg, session.NewRedisRevocationStore(rdb, ""))
			if err != nil {
				return fmt.Errorf("failed to create session minter: %w", err)
			}
			s, err := minter.Decode(token)
			if err != nil {
				return fmt.Errorf("failed to decode session: %w", err)
			}
			if err := minter.Revoke(ctx, s); err != nil {
				return fmt.Errorf("failed to revoke session: %w", err)
			}

			if cfg.RabbitMQURL != "" {
				if p, perr := events.NewRabbitMQPublisher(cfg.RabbitMQURL); perr == nil {
					e := events.New(events.TypeSessionRevoked)
					e.Subject = s.User.ID
					e.Email = s.User.Email
					e.Reason = reason
					events.Emit(ctx, p, zap.NewNop(), e)
					_ = p.Close()
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: revocation event not published: %v\n", perr)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Session %s revoked until %s\n", s.ID, s.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "operator", "Reason recorded on the revocation event")

	return cmd
}
