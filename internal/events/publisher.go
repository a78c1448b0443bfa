package events

import (
	"context"
	"time"

	"github.com/myrecipebook/web-gateway/internal/logger"
	"go.uber.org/zap"
)

// Publisher delivers auth events to an external sink
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) HealthCheck(context.Context) error    { return nil }
func (NopPublisher) Close() error                         { return nil }

// publishTimeout bounds how long an auth request waits on the broker
const publishTimeout = 2 * time.Second

// Emit publishes event and logs a failure instead of returning it.
// Auth flows must not fail because the audit sink is down.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, event Event) {
	emit(ctx, p, log, event, publishTimeout)
}

func emit(ctx context.Context, p Publisher, log *zap.Logger, event Event, timeout time.Duration) {
	if p == nil {
		return
	}
	event.Email = logger.MaskEmail(event.Email)

	// the event outlives a client disconnect but not the timeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := p.Publish(ctx, event); err != nil && log != nil {
		log.Warn("auth_event_publish_failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID.String()),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
}
