package events

import (
	"time"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionUpdated EventType = "whatsapp_session_updated"
	EventMessageCreated EventType = "message_created"
	EventTicketUpdated  EventType = "ticket_updated"
	EventContactUpdated EventType = "contact_updated"
)

// Event represents a domain event emitted by services. TenantID selects the
// fan-out channel consumers subscribe to.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  int64       `json:"tenant_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SessionUpdatedPayload payload.
type SessionUpdatedPayload struct {
	Action     string             `json:"action"`
	Connection *domain.Connection `json:"session"`
}

// MessageCreatedPayload payload.
type MessageCreatedPayload struct {
	Message *domain.Message `json:"message"`
	Ticket  *domain.Ticket  `json:"ticket"`
	Contact *domain.Contact `json:"contact,omitempty"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Action string         `json:"action"`
	Ticket *domain.Ticket `json:"ticket"`
}

// ContactUpdatedPayload payload.
type ContactUpdatedPayload struct {
	Action  string          `json:"action"`
	Contact *domain.Contact `json:"contact"`
}
