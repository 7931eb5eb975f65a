package domain

import "time"

// Contact is a chat participant. Number holds either country-normalized
// digits or an opaque linked identifier (LID) when the transport never
// revealed a real phone number.
type Contact struct {
	ID            string
	TenantID      int64
	Name          string
	Number        string
	IsGroup       bool
	ProfilePicURL string
	ConnectionID  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
