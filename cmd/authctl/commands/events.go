package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/myrecipebook/web-gateway/internal/config"
	"github.com/myrecipebook/web-gateway/internal/events"
	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewEventsCmd creates the events command
func NewEventsCmd() *cobra.Command {
	var (
		prefetch int
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail auth events",
		Long:  "Consume auth events from RabbitMQ, print them as JSON lines and acknowledge them, until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.RabbitMQURL == "" {
				return fmt.Errorf("RABBITMQ_URL is required")
			}
			log, err := logger.NewDevelopment(debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() {
				_ = log.Sync()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL)
			if err != nil {
				return err
			}
			defer func() {
				_ = p.Close()
			}()

			msgs, errs, err := p.Consume(ctx, prefetch)
			if err != nil {
				return err
			}
			log.Debug("consuming_auth_events", zap.Int("prefetch", prefetch))

			return tail(ctx, cmd, msgs, errs, log)
		},
	}

	cmd.Flags().IntVar(&prefetch, "prefetch", 10, "Number of unacknowledged events to buffer")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

func tail(ctx context.Context, cmd *cobra.Command, msgs <-chan *events.Message, errs <-chan error, log *zap.Logger) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				log.Warn("auth_event_consume_error", zap.Error(err))
			}
			if !ok {
				errs = nil
			}
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := enc.Encode(msg.Event); err != nil {
				_ = msg.Nack(true)
				return fmt.Errorf("failed to write event: %w", err)
			}
			if err := msg.Ack(); err != nil {
				log.Warn("auth_event_ack_failed", zap.String("event_id", msg.Event.ID.String()), zap.Error(err))
			}
		}
	}
}
