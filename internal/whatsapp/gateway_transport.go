package whatsapp

import (
	"context"
	"encoding/base64"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/domain"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// GatewayTransport delivers messages through an Evolution-style gateway
// instance bound to the connection.
type GatewayTransport struct {
	api      GatewayAPI
	resolver *ReplyResolver
	logger   *zap.Logger
}

func NewGatewayTransport(api GatewayAPI, resolver *ReplyResolver, logger *zap.Logger) *GatewayTransport {
	return &GatewayTransport{api: api, resolver: resolver, logger: logger}
}

func (t *GatewayTransport) ProviderName() string { return string(domain.ProviderGateway) }

func (t *GatewayTransport) SendText(ctx context.Context, in SendTextInput) (*SentMessage, error) {
	instance, address, err := t.prepare(ctx, in.Connection, in.Ticket, in.Contact)
	if err != nil {
		return nil, err
	}

	body := t.expand(in.Body, in.Contact, in.Agent, in.Ticket)
	result, err := t.api.SendText(ctx, instance, address, body)
	if err != nil {
		return nil, err
	}
	return &SentMessage{ID: result.MessageID, Ack: domain.AckSent, RemoteJid: result.RemoteJid}, nil
}

func (t *GatewayTransport) SendMedia(ctx context.Context, in SendMediaInput) (*SentMessage, error) {
	instance, address, err := t.prepare(ctx, in.Connection, in.Ticket, in.Contact)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(in.MediaPath)
	if err != nil {
		return nil, apperrors.NewTransportConfigError("media file unreadable", map[string]any{
			"path": in.MediaPath,
		})
	}

	result, err := t.api.SendMedia(ctx, instance, GatewayMediaRequest{
		Number:    address,
		MediaType: string(in.MediaKind),
		Base64:    base64.StdEncoding.EncodeToString(raw),
		Caption:   t.expand(in.Caption, in.Contact, in.Agent, in.Ticket),
		FileName:  in.FileName,
	})
	if err != nil {
		return nil, err
	}
	return &SentMessage{ID: result.MessageID, Ack: domain.AckSent, RemoteJid: result.RemoteJid}, nil
}

// prepare validates the connection's gateway binding and resolves the
// deliverable address for the contact.
func (t *GatewayTransport) prepare(ctx context.Context, conn *domain.Connection, ticket *domain.Ticket, contact *domain.Contact) (string, string, error) {
	if conn == nil || conn.InstanceName == nil || *conn.InstanceName == "" {
		return "", "", apperrors.NewTransportConfigError("connection has no gateway instance", nil)
	}

	if contact.IsGroup {
		return *conn.InstanceName, contact.Number, nil
	}

	address, err := t.resolver.Resolve(ctx, ticket.ID, contact.Number)
	if err != nil {
		return "", "", err
	}
	if address == "" {
		return "", "", apperrors.NewNoReplyAddressError(contact.Number)
	}
	return *conn.InstanceName, address, nil
}

func (t *GatewayTransport) expand(body string, contact *domain.Contact, agent *domain.User, _ *domain.Ticket) string {
	tc := TemplateContext{ContactName: contact.Name, Now: time.Now()}
	if agent != nil {
		tc.AgentName = agent.Name
	}
	return FormatBody(body, tc)
}
