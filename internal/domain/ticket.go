package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending TicketStatus = "pending"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClosed  TicketStatus = "closed"
)

// Ticket is one conversation between a contact and the tenant over a
// specific connection. At most one non-closed ticket may exist per
// (tenant, contact, connection); the store enforces this.
type Ticket struct {
	ID           string
	TenantID     int64
	ContactID    string
	ConnectionID *string
	QueueID      *string
	UserID       *string
	Status       TicketStatus
	IsGroup      bool
	UnreadCount  int
	LastMessage  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
