package domain

import "time"

// MediaKind classifies message payloads.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
)

// Ack levels mirror the transport's delivery receipts.
const (
	AckPending   = 0
	AckSent      = 1
	AckDelivered = 2
	AckRead      = 3
)

// Message is one stored chat message. ID is the transport's native message
// id and is the dedup key: a second inbound event with the same id is a
// no-op. Immutable after creation except Ack and Read.
type Message struct {
	ID          string
	TenantID    int64
	TicketID    string
	ContactID   *string
	Body        string
	FromMe      bool
	Read        bool
	MediaKind   MediaKind
	MediaURL    string
	QuotedMsgID *string
	Ack         int
	// RemoteJid is the raw reply-capable address captured at receipt time;
	// it may not be reconstructable later (LIDs are instance-specific).
	RemoteJid   string
	Participant *string
	DataJSON    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
