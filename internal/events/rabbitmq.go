package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchangeName is the topic exchange auth events are published to
	DefaultExchangeName = "recipebook.auth"
	// DefaultQueueName is the durable queue bound to all auth events
	DefaultQueueName = "recipebook_auth_events"
	// DefaultDLQName receives events that could not be decoded
	DefaultDLQName = "recipebook_auth_events_dlq"

	dlqRoutingKey = "dlq"
)

// RabbitMQPublisher publishes auth events to a RabbitMQ topic exchange
type RabbitMQPublisher struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	mu           sync.Mutex
	exchangeName string
	queueName    string
	dlqName      string
}

// NewRabbitMQPublisher connects to amqpURL and declares the exchange and queues
func NewRabbitMQPublisher(amqpURL string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := &RabbitMQPublisher{
		conn:         conn,
		channel:      ch,
		exchangeName: DefaultExchangeName,
		queueName:    DefaultQueueName,
		dlqName:      DefaultDLQName,
	}
	if err := p.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup exchange: %w", err)
	}
	return p, nil
}

func (p *RabbitMQPublisher) setup() error {
	if err := p.channel.ExchangeDeclare(
		p.exchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := p.channel.QueueDeclare(p.dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := p.channel.QueueBind(p.dlqName, dlqRoutingKey, p.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    p.exchangeName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := p.channel.QueueDeclare(p.queueName, true, false, false, false, queueArgs); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := p.channel.QueueBind(p.queueName, "auth.#", p.exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Publish sends event as a persistent JSON message
func (p *RabbitMQPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchangeName,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Consume streams events from the auth queue. Each message must be acked or nacked by the caller.
// Both channels are closed when ctx is cancelled or the delivery channel closes.
func (p *RabbitMQPublisher) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	if prefetchCount < 1 {
		prefetchCount = 1
	}
	consumeCh, err := p.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(
		p.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					select {
					case errChan <- fmt.Errorf("delivery channel closed"):
					default:
					}
					return
				}

				var event Event
				if err := json.Unmarshal(delivery.Body, &event); err != nil {
					_ = delivery.Nack(false, false)
					select {
					case errChan <- fmt.Errorf("failed to unmarshal event: %w", err):
					default:
					}
					continue
				}

				msg := &Message{Event: event, delivery: delivery}
				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// HealthCheck verifies the connection and channel are open
func (p *RabbitMQPublisher) HealthCheck(_ context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	if p.channel == nil || p.channel.IsClosed() {
		return fmt.Errorf("rabbitmq channel closed")
	}
	return nil
}

// Close closes the channel and connection
func (p *RabbitMQPublisher) Close() error {
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if closeErr := p.conn.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
