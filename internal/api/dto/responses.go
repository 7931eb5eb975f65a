package dto

import "time"

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the public agent view.
type UserResponse struct {
	ID       string `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// IntegrationResponse omits the API key.
type IntegrationResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	BaseURL      string    `json:"base_url"`
	InstanceName string    `json:"instance_name"`
	WebhookURL   string    `json:"webhook_url"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConnectionResponse is the public connection view.
type ConnectionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Provider      string    `json:"provider"`
	Subtype       string    `json:"subtype"`
	Status        string    `json:"status"`
	IntegrationID *string   `json:"integration_id,omitempty"`
	InstanceName  *string   `json:"instance_name,omitempty"`
	Qrcode        string    `json:"qrcode,omitempty"`
	Retries       int       `json:"retries"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QueueResponse is the routing queue view.
type QueueResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// MessageResponse is the stored message view.
type MessageResponse struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	ContactID   *string   `json:"contact_id,omitempty"`
	Body        string    `json:"body"`
	FromMe      bool      `json:"from_me"`
	MediaKind   string    `json:"media_kind"`
	MediaURL    string    `json:"media_url,omitempty"`
	QuotedMsgID *string   `json:"quoted_msg_id,omitempty"`
	Ack         int       `json:"ack"`
	CreatedAt   time.Time `json:"created_at"`
}
