package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/config"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/observability"
	"github.com/spec-kit/whatsdesk/internal/repository"
	"github.com/spec-kit/whatsdesk/internal/whatsapp"
)

// WebhookService normalizes raw gateway webhook events into contacts,
// tickets and messages. Every path is tolerant: a malformed or unprovisioned
// event is dropped with a log line, never an error to the caller, because
// gateways retry on non-2xx and a poison event must not wedge the queue.
type WebhookService struct {
	integrations repository.IntegrationRepository
	connections  repository.ConnectionRepository
	contacts     repository.ContactRepository
	tickets      repository.TicketRepository
	messages     repository.MessageRepository
	media        *whatsapp.MediaRetriever
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	cfg          config.WhatsAppConfig
	factory      whatsapp.GatewayFactory
	logger       *zap.Logger
}

func NewWebhookService(
	integrations repository.IntegrationRepository,
	connections repository.ConnectionRepository,
	contacts repository.ContactRepository,
	tickets repository.TicketRepository,
	messages repository.MessageRepository,
	media *whatsapp.MediaRetriever,
	dispatcher events.Dispatcher,
	metrics *observability.Metrics,
	cfg config.WhatsAppConfig,
	factory whatsapp.GatewayFactory,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		integrations: integrations,
		connections:  connections,
		contacts:     contacts,
		tickets:      tickets,
		messages:     messages,
		media:        media,
		dispatcher:   dispatcher,
		metrics:      metrics,
		cfg:          cfg,
		factory:      factory,
		logger:       logger,
	}
}

// WebhookEnvelope is the outer shape every gateway event shares.
type WebhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// CanonicalEventName lowers an event identifier to dotted form so that
// "MESSAGES_UPSERT" and "messages.upsert" select the same handler.
func CanonicalEventName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", ".")
}

// ProcessEvent dispatches one webhook event. The returned error is for
// logging and metrics only; HTTP handlers acknowledge regardless.
func (s *WebhookService) ProcessEvent(ctx context.Context, tenantID int64, env WebhookEnvelope) error {
	event := CanonicalEventName(env.Event)

	var err error
	switch event {
	case "connection.update":
		err = s.handleConnectionUpdate(ctx, tenantID, env.Instance, env.Data)
	case "qrcode.updated":
		err = s.handleQrcodeUpdated(ctx, tenantID, env.Instance, env.Data)
	case "messages.upsert":
		err = s.handleMessagesUpsert(ctx, tenantID, env.Instance, env.Data)
	case "messages.update":
		err = s.handleMessagesUpdate(ctx, tenantID, env.Data)
	default:
		s.metrics.RecordWebhookEvent(event, "ignored")
		return nil
	}

	if err != nil {
		s.metrics.RecordWebhookEvent(event, "dropped")
		s.logger.Warn("webhook event dropped",
			zap.String("event", event),
			zap.String("instance", env.Instance),
			zap.Int64("tenant_id", tenantID),
			zap.Error(err))
		return err
	}
	s.metrics.RecordWebhookEvent(event, "processed")
	return nil
}

// resolveConnection maps an instance name to its provisioned connection.
// When the integration exists but was never linked (the connection row
// predates the link), a name match repairs the binding. An instance with no
// integration or no connection is dropped rather than auto-created; rows
// materializing out of webhook traffic would bypass tenant provisioning.
func (s *WebhookService) resolveConnection(ctx context.Context, tenantID int64, instanceName string) (*domain.Connection, *domain.Integration, error) {
	integration, err := s.integrations.GetActiveByInstance(ctx, tenantID, instanceName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("no active integration for instance %q", instanceName)
		}
		return nil, nil, err
	}

	conn, err := s.connections.GetByIntegration(ctx, tenantID, integration.ID)
	if err == nil {
		return conn, integration, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}

	conn, err = s.connections.GetByName(ctx, tenantID, instanceName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("no connection provisioned for instance %q", instanceName)
		}
		return nil, nil, err
	}
	if err := s.connections.LinkIntegration(ctx, tenantID, conn.ID, integration.ID); err != nil {
		return nil, nil, err
	}
	conn.IntegrationID = &integration.ID
	s.logger.Info("connection re-linked to integration by name",
		zap.String("connection_id", conn.ID),
		zap.String("instance", instanceName))
	return conn, integration, nil
}

type connectionUpdateData struct {
	State           string `json:"state"`
	Status          string `json:"status"`
	StatusReason    int    `json:"statusReason"`
	DisconnectionAt string `json:"disconnectionAt"`
}

func (s *WebhookService) handleConnectionUpdate(ctx context.Context, tenantID int64, instanceName string, data json.RawMessage) error {
	var payload connectionUpdateData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("connection.update payload undecodable: %w", err)
	}
	token := payload.State
	if token == "" {
		token = payload.Status
	}

	conn, _, err := s.resolveConnection(ctx, tenantID, instanceName)
	if err != nil {
		return err
	}

	status := whatsapp.MapStateToken(token)
	update := repository.StatusUpdate{Status: status}
	if status == domain.ConnectionStatusConnected {
		empty := ""
		update.Qrcode = &empty
		update.ResetRetries = true
	}

	updated, err := s.connections.ApplyStatus(ctx, tenantID, conn.ID, update)
	if err != nil {
		return err
	}
	s.publishSession(ctx, tenantID, "update", updated)
	return nil
}

type qrcodeUpdatedData struct {
	Qrcode struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	} `json:"qrcode"`
	Base64 string `json:"base64"`
}

func (s *WebhookService) handleQrcodeUpdated(ctx context.Context, tenantID int64, instanceName string, data json.RawMessage) error {
	var payload qrcodeUpdatedData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("qrcode.updated payload undecodable: %w", err)
	}
	qr := payload.Qrcode.Base64
	if qr == "" {
		qr = payload.Base64
	}
	if qr == "" {
		qr = payload.Qrcode.Code
	}

	conn, _, err := s.resolveConnection(ctx, tenantID, instanceName)
	if err != nil {
		return err
	}

	updated, err := s.connections.ApplyStatus(ctx, tenantID, conn.ID, repository.StatusUpdate{
		Status: domain.ConnectionStatusQRCode,
		Qrcode: &qr,
	})
	if err != nil {
		return err
	}
	s.publishSession(ctx, tenantID, "update", updated)
	return nil
}

// inboundMessage mirrors the message shape Evolution-style gateways emit.
type inboundMessage struct {
	Key struct {
		RemoteJid   string `json:"remoteJid"`
		FromMe      bool   `json:"fromMe"`
		ID          string `json:"id"`
		Participant string `json:"participant"`
		SenderPn    string `json:"senderPn"`
	} `json:"key"`
	PushName         string          `json:"pushName"`
	MessageType      string          `json:"messageType"`
	MessageTimestamp int64           `json:"messageTimestamp"`
	Base64           string          `json:"base64"`
	Message          json.RawMessage `json:"message"`
}

type inboundMessageBody struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text        string       `json:"text"`
		ContextInfo *contextInfo `json:"contextInfo"`
	} `json:"extendedTextMessage"`
	ImageMessage    *mediaMessage `json:"imageMessage"`
	VideoMessage    *mediaMessage `json:"videoMessage"`
	AudioMessage    *mediaMessage `json:"audioMessage"`
	DocumentMessage *mediaMessage `json:"documentMessage"`
	StickerMessage  *mediaMessage `json:"stickerMessage"`
}

type mediaMessage struct {
	URL         string       `json:"url"`
	Caption     string       `json:"caption"`
	Mimetype    string       `json:"mimetype"`
	FileName    string       `json:"fileName"`
	ContextInfo *contextInfo `json:"contextInfo"`
}

type contextInfo struct {
	StanzaID string `json:"stanzaId"`
}

// placeholders are the body shown for media without a caption, matching
// what agents see in the conversation list.
var mediaPlaceholders = map[domain.MediaKind]string{
	domain.MediaImage:    "[imagem]",
	domain.MediaVideo:    "[video]",
	domain.MediaAudio:    "[audio]",
	domain.MediaDocument: "[documento]",
	domain.MediaSticker:  "[sticker]",
}

func (s *WebhookService) handleMessagesUpsert(ctx context.Context, tenantID int64, instanceName string, data json.RawMessage) error {
	msg, err := unwrapMessage(data)
	if err != nil {
		return err
	}
	if msg.Key.ID == "" || msg.Key.RemoteJid == "" {
		return errors.New("message without key")
	}
	// Outbound echoes carry fromMe; the send path already recorded them.
	if msg.Key.FromMe {
		return nil
	}

	isGroup := strings.HasSuffix(msg.Key.RemoteJid, whatsapp.SuffixGroup)
	if isGroup && s.cfg.IgnoreGroupMessages {
		return nil
	}

	exists, err := s.messages.ExistsByID(ctx, tenantID, msg.Key.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	conn, integration, err := s.resolveConnection(ctx, tenantID, instanceName)
	if err != nil {
		return err
	}

	identity := whatsapp.ResolveContactIdentity(msg.Key.RemoteJid, msg.Key.SenderPn, isGroup)
	contactNumber := identity.ContactNumber
	if !identity.IsGroup && !identity.Degraded {
		contactNumber = whatsapp.NormalizeNumber(contactNumber, s.cfg.CountryCode)
	}

	name := strings.TrimSpace(msg.PushName)
	if name == "" {
		name = contactNumber
	}

	var api whatsapp.GatewayAPI
	if integration != nil {
		api = s.factory(integration.BaseURL, integration.APIKey)
	}

	profilePic := ""
	if api != nil && identity.MediaLookupNumber != "" {
		// Best effort; a miss never blocks the message.
		profilePic, _ = api.FetchProfilePicture(ctx, instanceName, identity.MediaLookupNumber)
	}

	contact, err := s.contacts.FindOrCreate(ctx, tenantID, contactNumber, repository.ContactAttrs{
		Name:          name,
		IsGroup:       identity.IsGroup,
		ProfilePicURL: profilePic,
		ConnectionID:  &conn.ID,
	})
	if err != nil {
		return err
	}

	defaultQueueID, err := s.connections.DefaultQueueID(ctx, conn.ID)
	if err != nil {
		return err
	}

	ticket, err := s.tickets.FindOrCreateOpen(ctx, tenantID, contact.ID, conn.ID, identity.IsGroup, defaultQueueID, nil)
	if err != nil {
		return err
	}

	body, kind, src, quotedID := s.classify(msg)
	mediaURL := ""
	if kind != domain.MediaNone {
		mediaURL = s.media.FetchAndPersist(ctx, api, instanceName, msg.Key.ID, kind, src)
	}

	var quoted *string
	if quotedID != "" {
		if _, err := s.messages.GetByID(ctx, tenantID, quotedID); err == nil {
			quoted = &quotedID
		}
	}

	created := time.Now()
	if msg.MessageTimestamp > 0 {
		created = time.Unix(msg.MessageTimestamp, 0)
	}
	var participant *string
	if p := strings.TrimSpace(msg.Key.Participant); p != "" {
		participant = &p
	}

	record := &domain.Message{
		ID:          msg.Key.ID,
		TenantID:    tenantID,
		TicketID:    ticket.ID,
		ContactID:   &contact.ID,
		Body:        body,
		FromMe:      false,
		MediaKind:   kind,
		MediaURL:    mediaURL,
		QuotedMsgID: quoted,
		Ack:         domain.AckDelivered,
		RemoteJid:   identity.ReplyAddress,
		Participant: participant,
		DataJSON:    string(data),
		CreatedAt:   created,
	}
	inserted, err := s.messages.Create(ctx, record)
	if err != nil {
		return err
	}
	// A concurrent duplicate won the insert race; its handler owns the
	// side effects.
	if !inserted {
		return nil
	}

	if err := s.tickets.UpdateSummary(ctx, tenantID, ticket.ID, body, 1); err != nil {
		return err
	}
	ticket.LastMessage = body
	ticket.UnreadCount++

	s.publish(ctx, tenantID, events.EventMessageCreated, events.MessageCreatedPayload{
		Message: record,
		Ticket:  ticket,
		Contact: contact,
	})
	return nil
}

type messageUpdateData struct {
	KeyID  string `json:"keyId"`
	Key    *struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

var ackStatuses = map[string]int{
	"PENDING":      domain.AckPending,
	"SERVER_ACK":   domain.AckSent,
	"DELIVERY_ACK": domain.AckDelivered,
	"READ":         domain.AckRead,
	"PLAYED":       domain.AckRead,
}

func (s *WebhookService) handleMessagesUpdate(ctx context.Context, tenantID int64, data json.RawMessage) error {
	var payload messageUpdateData
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("messages.update payload undecodable: %w", err)
	}
	id := payload.KeyID
	if id == "" && payload.Key != nil {
		id = payload.Key.ID
	}
	if id == "" {
		return errors.New("messages.update without message id")
	}
	ack, ok := ackStatuses[strings.ToUpper(payload.Status)]
	if !ok {
		return nil
	}
	return s.messages.SetAck(ctx, tenantID, id, ack)
}

// unwrapMessage accepts both envelope shapes gateways use: the message
// object directly, or {"messages": [msg]}.
func unwrapMessage(data json.RawMessage) (*inboundMessage, error) {
	var wrapped struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Messages) > 0 {
		data = wrapped.Messages[0]
	}
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("messages.upsert payload undecodable: %w", err)
	}
	return &msg, nil
}

// classify extracts the display body, media kind, media source material and
// quoted message id from the raw message content.
func (s *WebhookService) classify(msg *inboundMessage) (string, domain.MediaKind, whatsapp.MediaSource, string) {
	var body inboundMessageBody
	if len(msg.Message) > 0 {
		_ = json.Unmarshal(msg.Message, &body)
	}

	kind := domain.MediaNone
	var media *mediaMessage
	switch {
	case body.ImageMessage != nil:
		kind, media = domain.MediaImage, body.ImageMessage
	case body.VideoMessage != nil:
		kind, media = domain.MediaVideo, body.VideoMessage
	case body.AudioMessage != nil:
		kind, media = domain.MediaAudio, body.AudioMessage
	case body.DocumentMessage != nil:
		kind, media = domain.MediaDocument, body.DocumentMessage
	case body.StickerMessage != nil:
		kind, media = domain.MediaSticker, body.StickerMessage
	}

	if media != nil {
		text := strings.TrimSpace(media.Caption)
		if text == "" {
			text = mediaPlaceholders[kind]
		}
		quoted := ""
		if media.ContextInfo != nil {
			quoted = media.ContextInfo.StanzaID
		}
		return text, kind, whatsapp.MediaSource{
			Base64:   msg.Base64,
			URL:      media.URL,
			MimeType: media.Mimetype,
			FileName: media.FileName,
		}, quoted
	}

	if body.ExtendedTextMessage != nil {
		quoted := ""
		if body.ExtendedTextMessage.ContextInfo != nil {
			quoted = body.ExtendedTextMessage.ContextInfo.StanzaID
		}
		return body.ExtendedTextMessage.Text, domain.MediaNone, whatsapp.MediaSource{}, quoted
	}
	return body.Conversation, domain.MediaNone, whatsapp.MediaSource{}, ""
}

func (s *WebhookService) publishSession(ctx context.Context, tenantID int64, action string, conn *domain.Connection) {
	s.publish(ctx, tenantID, events.EventSessionUpdated, events.SessionUpdatedPayload{
		Action:     action,
		Connection: conn,
	})
}

func (s *WebhookService) publish(ctx context.Context, tenantID int64, eventType events.EventType, payload any) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
