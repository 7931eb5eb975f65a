package domain

import "time"

// ConnectionStatus enumerates lifecycle states for a WhatsApp connection.
// Status is mutated only by the connection state machine or an explicit
// disconnect; a DISCONNECTED connection can re-enter OPENING.
type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "PENDING"
	ConnectionStatusOpening      ConnectionStatus = "OPENING"
	ConnectionStatusConnected    ConnectionStatus = "CONNECTED"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
	// ConnectionStatusQRCode marks a connection waiting for pairing; the QR
	// payload travels alongside in the Qrcode field.
	ConnectionStatusQRCode ConnectionStatus = "qrcode"
)

// ConnectionProvider selects the transport family.
type ConnectionProvider string

const (
	ProviderLocal   ConnectionProvider = "local"
	ProviderGateway ConnectionProvider = "gateway"
)

// ConnectionSubtype refines the gateway integration mode.
type ConnectionSubtype string

const (
	SubtypeSession        ConnectionSubtype = "session"
	SubtypeGatewayBaileys ConnectionSubtype = "gatewayBaileys"
	SubtypeGatewayCloud   ConnectionSubtype = "gatewayCloudApi"
)

// Connection is one tenant-scoped transport instance.
type Connection struct {
	ID            string
	TenantID      int64
	Name          string
	Provider      ConnectionProvider
	Subtype       ConnectionSubtype
	Status        ConnectionStatus
	IntegrationID *string
	InstanceName  *string
	Qrcode        string
	Retries       int
	IsDefault     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UsesGateway reports whether sends for this connection go through the
// remote gateway rather than a local session.
func (c *Connection) UsesGateway() bool {
	return c.Provider == ProviderGateway && c.IntegrationID != nil
}
