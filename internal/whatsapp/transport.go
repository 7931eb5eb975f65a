package whatsapp

import (
	"context"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// SendTextInput carries everything a transport needs to deliver a text
// message for a ticket.
type SendTextInput struct {
	Connection *domain.Connection
	Ticket     *domain.Ticket
	Contact    *domain.Contact
	Agent      *domain.User
	Body       string
	Quoted     *domain.Message
}

// SendMediaInput carries an outbound media delivery. MediaPath points at the
// locally persisted file; Caption is already template-expanded by the caller's
// transport.
type SendMediaInput struct {
	Connection *domain.Connection
	Ticket     *domain.Ticket
	Contact    *domain.Contact
	Agent      *domain.User
	MediaPath  string
	MediaKind  domain.MediaKind
	FileName   string
	Caption    string
}

// SentMessage is the provider-assigned identity of a delivered message.
type SentMessage struct {
	ID        string
	Ack       int
	RemoteJid string
}

// Transport delivers outbound messages over one provider mechanism.
type Transport interface {
	ProviderName() string
	SendText(ctx context.Context, in SendTextInput) (*SentMessage, error)
	SendMedia(ctx context.Context, in SendMediaInput) (*SentMessage, error)
}

// GatewayAPI is the slice of the gateway client the transports and services
// depend on. *GatewayClient satisfies it.
type GatewayAPI interface {
	SendText(ctx context.Context, instanceName, number, text string) (*GatewaySendResult, error)
	SendMedia(ctx context.Context, instanceName string, req GatewayMediaRequest) (*GatewaySendResult, error)
	FetchProfilePicture(ctx context.Context, instanceName, number string) (string, error)
	FetchBase64Media(ctx context.Context, instanceName, messageID string) (string, error)
}

// GatewayAdmin covers instance lifecycle operations. *GatewayClient
// satisfies it.
type GatewayAdmin interface {
	CreateInstance(ctx context.Context, req CreateInstanceRequest) error
	Connect(ctx context.Context, instanceName string) (*ConnectResult, error)
	ConnectionState(ctx context.Context, instanceName string) (string, error)
	HasInstance(ctx context.Context, instanceName string) (bool, error)
	DeleteInstance(ctx context.Context, instanceName string) error
	LogoutInstance(ctx context.Context, instanceName string) error
}

// GatewayAdminFactory builds an admin client for one integration's
// credentials.
type GatewayAdminFactory func(baseURL, apiKey string) GatewayAdmin
