package whatsapp

import (
	"strings"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// stateTokens maps the gateway's connection-state vocabulary onto the
// internal lifecycle. Gateways have renamed these tokens across versions;
// anything unrecognized lands on PENDING rather than crashing ingestion.
var stateTokens = map[string]domain.ConnectionStatus{
	"OPEN":              domain.ConnectionStatusConnected,
	"CONNECTED":         domain.ConnectionStatusConnected,
	"CONNECTED_RESTORE": domain.ConnectionStatusConnected,
	"CLOSE":             domain.ConnectionStatusDisconnected,
	"DISCONNECTED":      domain.ConnectionStatusDisconnected,
	"CONNECTING":        domain.ConnectionStatusOpening,
	"QR":                domain.ConnectionStatusQRCode,
	"QR_CODE":           domain.ConnectionStatusQRCode,
}

// MapStateToken converts a raw gateway state token to a connection status.
func MapStateToken(token string) domain.ConnectionStatus {
	if status, ok := stateTokens[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return status
	}
	return domain.ConnectionStatusPending
}
