package domain

import "time"

// User is an agent belonging to one tenant. The agent name feeds the
// outbound template variables.
type User struct {
	ID           string
	TenantID     int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
