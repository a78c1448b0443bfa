package events

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message wraps a consumed event with its delivery
type Message struct {
	Event    Event
	delivery amqp.Delivery
}

// Ack acknowledges the message
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack negatively acknowledges the message
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}
