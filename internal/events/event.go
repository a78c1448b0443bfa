package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the kind of auth event
type Type string

const (
	TypeLoginSucceeded         Type = "login.succeeded"
	TypeLoginFailed            Type = "login.failed"
	TypeRegistered             Type = "user.registered"
	TypeSignedOut              Type = "session.signed_out"
	TypeSessionUpdated         Type = "session.updated"
	TypeSessionRevoked         Type = "session.revoked"
	TypeHandoffEstablished     Type = "handoff.established"
	TypeHandoffFailed          Type = "handoff.failed"
	TypeHandoffSuppressed      Type = "handoff.suppressed"
	TypePasswordResetRequested Type = "password_reset.requested"
	TypePasswordResetCompleted Type = "password_reset.completed"
)

// Event is an audit record of an authentication action.
// Email is always masked before an event leaves the process.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	Subject    string    `json:"subject,omitempty"`
	Email      string    `json:"email,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New creates an event of the given type stamped with a fresh ID and the current time
func New(eventType Type) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// RoutingKey is the topic routing key the event is published under
func (e Event) RoutingKey() string {
	return "auth." + string(e.Type)
}
