package domain

import "time"

// Queue groups tickets for routing to agent teams.
type Queue struct {
	ID        string
	TenantID  int64
	Name      string
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
