package domain

import "time"

// IntegrationType identifies the gateway family an integration talks to.
const IntegrationTypeEvolution = "evolution"

// Integration stores credentials for a remotely-hosted WhatsApp gateway.
type Integration struct {
	ID           string
	TenantID     int64
	Name         string
	Type         string
	BaseURL      string
	APIKey       string
	InstanceName string
	WebhookURL   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
