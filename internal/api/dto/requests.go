package dto

// LoginRequest authenticates an agent.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateIntegrationRequest registers gateway credentials.
type CreateIntegrationRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	BaseURL      string `json:"base_url"`
	APIKey       string `json:"api_key"`
	InstanceName string `json:"instance_name"`
	WebhookURL   string `json:"webhook_url"`
	IsActive     bool   `json:"is_active"`
}

// CreateConnectionRequest provisions a connection.
type CreateConnectionRequest struct {
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	Subtype       string   `json:"subtype"`
	IntegrationID *string  `json:"integration_id"`
	IsDefault     bool     `json:"is_default"`
	QueueIDs      []string `json:"queue_ids"`
	Token         string   `json:"token"`
	Number        string   `json:"number"`
	BusinessID    string   `json:"business_id"`
}

// SendMessageRequest is an agent text send on a ticket.
type SendMessageRequest struct {
	Body        string  `json:"body"`
	QuotedMsgID *string `json:"quoted_msg_id"`
}

// SendMediaRequest is an agent media send on a ticket.
type SendMediaRequest struct {
	MediaPath string `json:"media_path"`
	MediaKind string `json:"media_kind"`
	Caption   string `json:"caption"`
}
