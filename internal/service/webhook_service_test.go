package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/config"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/observability"
	"github.com/spec-kit/whatsdesk/internal/repository"
	"github.com/spec-kit/whatsdesk/internal/whatsapp"
)

type fakeIntegrations struct {
	repository.IntegrationRepository
	byInstance map[string]*domain.Integration
}

func (f *fakeIntegrations) GetActiveByInstance(_ context.Context, _ int64, instanceName string) (*domain.Integration, error) {
	if integration, ok := f.byInstance[instanceName]; ok {
		return integration, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeConnections struct {
	repository.ConnectionRepository
	byIntegration map[string]*domain.Connection
	byName        map[string]*domain.Connection
	linked        map[string]string
	applied       []repository.StatusUpdate
	defaultQueue  *string
}

func (f *fakeConnections) GetByIntegration(_ context.Context, _ int64, integrationID string) (*domain.Connection, error) {
	if conn, ok := f.byIntegration[integrationID]; ok {
		return conn, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeConnections) GetByName(_ context.Context, _ int64, name string) (*domain.Connection, error) {
	if conn, ok := f.byName[name]; ok {
		return conn, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeConnections) LinkIntegration(_ context.Context, _ int64, id, integrationID string) error {
	if f.linked == nil {
		f.linked = map[string]string{}
	}
	f.linked[id] = integrationID
	return nil
}

func (f *fakeConnections) ApplyStatus(_ context.Context, _ int64, id string, update repository.StatusUpdate) (*domain.Connection, error) {
	f.applied = append(f.applied, update)
	conn := &domain.Connection{ID: id, Status: update.Status}
	if update.Qrcode != nil {
		conn.Qrcode = *update.Qrcode
	}
	return conn, nil
}

func (f *fakeConnections) DefaultQueueID(context.Context, string) (*string, error) {
	return f.defaultQueue, nil
}

type fakeContacts struct {
	repository.ContactRepository
	created []repository.ContactAttrs
	numbers []string
}

func (f *fakeContacts) FindOrCreate(_ context.Context, tenantID int64, number string, attrs repository.ContactAttrs) (*domain.Contact, error) {
	f.created = append(f.created, attrs)
	f.numbers = append(f.numbers, number)
	return &domain.Contact{
		ID:       "contact-" + number,
		TenantID: tenantID,
		Name:     attrs.Name,
		Number:   number,
		IsGroup:  attrs.IsGroup,
	}, nil
}

type fakeTickets struct {
	repository.TicketRepository
	openCalls int
	queueSeen *string
	summaries []string
	unreadSum int
}

func (f *fakeTickets) FindOrCreateOpen(_ context.Context, tenantID int64, contactID, connectionID string, isGroup bool, defaultQueueID, _ *string) (*domain.Ticket, error) {
	f.openCalls++
	f.queueSeen = defaultQueueID
	return &domain.Ticket{
		ID:           "ticket-1",
		TenantID:     tenantID,
		ContactID:    contactID,
		ConnectionID: &connectionID,
		QueueID:      defaultQueueID,
		Status:       domain.TicketStatusPending,
		IsGroup:      isGroup,
	}, nil
}

func (f *fakeTickets) UpdateSummary(_ context.Context, _ int64, _ string, lastMessage string, unreadDelta int) error {
	f.summaries = append(f.summaries, lastMessage)
	f.unreadSum += unreadDelta
	return nil
}

type fakeMessages struct {
	repository.MessageRepository
	existing map[string]*domain.Message
	created  []*domain.Message
	acks     map[string]int
}

func (f *fakeMessages) ExistsByID(_ context.Context, _ int64, id string) (bool, error) {
	_, ok := f.existing[id]
	return ok, nil
}

func (f *fakeMessages) Create(_ context.Context, msg *domain.Message) (bool, error) {
	if _, ok := f.existing[msg.ID]; ok {
		return false, nil
	}
	if f.existing == nil {
		f.existing = map[string]*domain.Message{}
	}
	f.existing[msg.ID] = msg
	f.created = append(f.created, msg)
	return true, nil
}

func (f *fakeMessages) GetByID(_ context.Context, _ int64, id string) (*domain.Message, error) {
	if msg, ok := f.existing[id]; ok {
		return msg, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeMessages) SetAck(_ context.Context, _ int64, id string, ack int) error {
	if f.acks == nil {
		f.acks = map[string]int{}
	}
	f.acks[id] = ack
	return nil
}

type fakeGateway struct {
	profilePic string
}

func (f *fakeGateway) SendText(context.Context, string, string, string) (*whatsapp.GatewaySendResult, error) {
	return nil, nil
}

func (f *fakeGateway) SendMedia(context.Context, string, whatsapp.GatewayMediaRequest) (*whatsapp.GatewaySendResult, error) {
	return nil, nil
}

func (f *fakeGateway) FetchProfilePicture(context.Context, string, string) (string, error) {
	return f.profilePic, nil
}

func (f *fakeGateway) FetchBase64Media(context.Context, string, string) (string, error) {
	return "", nil
}

type webhookFixture struct {
	svc          *WebhookService
	integrations *fakeIntegrations
	connections  *fakeConnections
	contacts     *fakeContacts
	tickets      *fakeTickets
	messages     *fakeMessages
	published    *[]events.Event
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	integrationID := "i1"
	conn := &domain.Connection{
		ID:            "c1",
		TenantID:      1,
		Name:          "inst1",
		Provider:      domain.ProviderGateway,
		Subtype:       domain.SubtypeGatewayBaileys,
		Status:        domain.ConnectionStatusConnected,
		IntegrationID: &integrationID,
	}
	instance := "inst1"
	integrations := &fakeIntegrations{byInstance: map[string]*domain.Integration{
		instance: {ID: integrationID, TenantID: 1, Type: domain.IntegrationTypeEvolution, BaseURL: "https://gw", APIKey: "k", InstanceName: instance, IsActive: true},
	}}
	connections := &fakeConnections{
		byIntegration: map[string]*domain.Connection{integrationID: conn},
		byName:        map[string]*domain.Connection{instance: conn},
	}
	contacts := &fakeContacts{}
	tickets := &fakeTickets{}
	messages := &fakeMessages{existing: map[string]*domain.Message{}}

	dispatcher := events.NewInMemoryDispatcher()
	published := &[]events.Event{}
	record := func(_ context.Context, e events.Event) error {
		*published = append(*published, e)
		return nil
	}
	dispatcher.Subscribe(events.EventSessionUpdated, record)
	dispatcher.Subscribe(events.EventMessageCreated, record)

	cfg := config.WhatsAppConfig{CountryCode: "55", AllowLocalSessions: true}
	factory := func(string, string) whatsapp.GatewayAPI { return &fakeGateway{profilePic: "https://pic"} }

	svc := NewWebhookService(
		integrations, connections, contacts, tickets, messages,
		whatsapp.NewMediaRetriever(t.TempDir(), zap.NewNop()),
		dispatcher, observability.NewMetrics(), cfg, factory, zap.NewNop(),
	)
	return &webhookFixture{
		svc:          svc,
		integrations: integrations,
		connections:  connections,
		contacts:     contacts,
		tickets:      tickets,
		messages:     messages,
		published:    published,
	}
}

func textUpsert(msgID, remoteJid, pushName, text string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"key": {"remoteJid": %q, "fromMe": false, "id": %q},
		"pushName": %q,
		"messageType": "conversation",
		"message": {"conversation": %q}
	}`, remoteJid, msgID, pushName, text))
}

func TestCanonicalEventName(t *testing.T) {
	assert.Equal(t, "messages.upsert", CanonicalEventName("MESSAGES_UPSERT"))
	assert.Equal(t, "messages.upsert", CanonicalEventName("messages.upsert"))
	assert.Equal(t, "connection.update", CanonicalEventName(" CONNECTION_UPDATE "))
	assert.Equal(t, "qrcode.updated", CanonicalEventName("QRCODE_UPDATED"))
}

func TestWebhook_MessageCreatesContactTicketMessage(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "MESSAGES_UPSERT",
		Instance: "inst1",
		Data:     textUpsert("MSG1", "5511999998888@s.whatsapp.net", "Maria", "oi"),
	})
	require.NoError(t, err)

	require.Len(t, f.messages.created, 1)
	msg := f.messages.created[0]
	assert.Equal(t, "MSG1", msg.ID)
	assert.Equal(t, "oi", msg.Body)
	assert.False(t, msg.FromMe)
	assert.Equal(t, "5511999998888@s.whatsapp.net", msg.RemoteJid)
	assert.Equal(t, domain.MediaNone, msg.MediaKind)

	require.Len(t, f.contacts.numbers, 1)
	assert.Equal(t, "5511999998888", f.contacts.numbers[0])
	assert.Equal(t, "Maria", f.contacts.created[0].Name)
	assert.Equal(t, "https://pic", f.contacts.created[0].ProfilePicURL)

	assert.Equal(t, 1, f.tickets.openCalls)
	assert.Equal(t, []string{"oi"}, f.tickets.summaries)
	assert.Equal(t, 1, f.tickets.unreadSum)

	require.Len(t, *f.published, 1, "exactly one event per accepted message")
	assert.Equal(t, events.EventMessageCreated, (*f.published)[0].Type)
}

func TestWebhook_ArrayWrappedUpsertUnwrapped(t *testing.T) {
	f := newWebhookFixture(t)
	wrapped := json.RawMessage(fmt.Sprintf(`{"messages": [%s]}`,
		textUpsert("WRAP1", "5511999998888@s.whatsapp.net", "Maria", "oi")))

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data:     wrapped,
	})
	require.NoError(t, err)

	require.Len(t, f.messages.created, 1)
	assert.Equal(t, "WRAP1", f.messages.created[0].ID)
	assert.Equal(t, "oi", f.messages.created[0].Body)
}

func TestWebhook_DuplicateMessageIsNoOp(t *testing.T) {
	f := newWebhookFixture(t)
	data := textUpsert("MSG1", "5511999998888@s.whatsapp.net", "Maria", "oi")

	require.NoError(t, f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{Event: "messages.upsert", Instance: "inst1", Data: data}))
	require.NoError(t, f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{Event: "messages.upsert", Instance: "inst1", Data: data}))

	assert.Len(t, f.messages.created, 1)
	assert.Equal(t, 1, f.tickets.openCalls)
	assert.Len(t, *f.published, 1)
}

func TestWebhook_FromMeSkipped(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data:     json.RawMessage(`{"key": {"remoteJid": "5511999998888@s.whatsapp.net", "fromMe": true, "id": "MSG9"}, "message": {"conversation": "eco"}}`),
	})
	require.NoError(t, err)

	assert.Empty(t, f.messages.created)
	assert.Empty(t, *f.published)
}

func TestWebhook_UnprovisionedInstanceDropped(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "ghost",
		Data:     textUpsert("MSG2", "5511999998888@s.whatsapp.net", "Maria", "oi"),
	})

	require.Error(t, err)
	assert.Empty(t, f.messages.created, "unprovisioned instances never materialize rows")
	assert.Empty(t, f.contacts.created)
}

func TestWebhook_GroupMessagesIgnoredByPolicy(t *testing.T) {
	f := newWebhookFixture(t)
	f.svc.cfg.IgnoreGroupMessages = true

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data:     textUpsert("MSG3", "120363042123456789@g.us", "Grupo", "oi"),
	})
	require.NoError(t, err)

	assert.Empty(t, f.messages.created)
}

func TestWebhook_LIDContactDegradesGracefully(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data:     json.RawMessage(`{"key": {"remoteJid": "98765432109876543@lid", "fromMe": false, "id": "MSG4"}, "message": {"conversation": "oi"}}`),
	})
	require.NoError(t, err)

	require.Len(t, f.messages.created, 1)
	assert.Equal(t, "98765432109876543@lid", f.messages.created[0].RemoteJid, "reply address captured verbatim")
	assert.Equal(t, "98765432109876543", f.contacts.numbers[0])
	// No real number means no profile lookup.
	assert.Empty(t, f.contacts.created[0].ProfilePicURL)
}

func TestWebhook_MediaMessageGetsPlaceholderBody(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data: json.RawMessage(`{
			"key": {"remoteJid": "5511999998888@s.whatsapp.net", "fromMe": false, "id": "MSG5"},
			"messageType": "imageMessage",
			"message": {"imageMessage": {"mimetype": "image/jpeg"}}
		}`),
	})
	require.NoError(t, err)

	require.Len(t, f.messages.created, 1)
	msg := f.messages.created[0]
	assert.Equal(t, "[imagem]", msg.Body)
	assert.Equal(t, domain.MediaImage, msg.MediaKind)
	assert.Empty(t, msg.MediaURL, "irretrievable media degrades to no file")
}

func TestWebhook_QuotedMessageResolvedWhenKnown(t *testing.T) {
	f := newWebhookFixture(t)
	f.messages.existing["ORIG"] = &domain.Message{ID: "ORIG"}

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data: json.RawMessage(`{
			"key": {"remoteJid": "5511999998888@s.whatsapp.net", "fromMe": false, "id": "MSG6"},
			"message": {"extendedTextMessage": {"text": "reply", "contextInfo": {"stanzaId": "ORIG"}}}
		}`),
	})
	require.NoError(t, err)

	require.Len(t, f.messages.created, 1)
	require.NotNil(t, f.messages.created[0].QuotedMsgID)
	assert.Equal(t, "ORIG", *f.messages.created[0].QuotedMsgID)
}

func TestWebhook_QuotedMessageUnknownLeftNil(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data: json.RawMessage(`{
			"key": {"remoteJid": "5511999998888@s.whatsapp.net", "fromMe": false, "id": "MSG7"},
			"message": {"extendedTextMessage": {"text": "reply", "contextInfo": {"stanzaId": "NEVER-SEEN"}}}
		}`),
	})
	require.NoError(t, err)

	require.Len(t, f.messages.created, 1)
	assert.Nil(t, f.messages.created[0].QuotedMsgID)
}

func TestWebhook_DefaultQueueAppliedToNewTicket(t *testing.T) {
	f := newWebhookFixture(t)
	queueID := "q1"
	f.connections.defaultQueue = &queueID

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "messages.upsert",
		Instance: "inst1",
		Data:     textUpsert("MSG8", "5511999998888@s.whatsapp.net", "Maria", "oi"),
	})
	require.NoError(t, err)

	require.NotNil(t, f.tickets.queueSeen)
	assert.Equal(t, "q1", *f.tickets.queueSeen)
}

func TestWebhook_ConnectionUpdateMapsState(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "CONNECTION_UPDATE",
		Instance: "inst1",
		Data:     json.RawMessage(`{"state": "open"}`),
	})
	require.NoError(t, err)

	require.Len(t, f.connections.applied, 1)
	update := f.connections.applied[0]
	assert.Equal(t, domain.ConnectionStatusConnected, update.Status)
	assert.True(t, update.ResetRetries)
	require.NotNil(t, update.Qrcode)
	assert.Empty(t, *update.Qrcode, "pairing succeeded, QR must be cleared")

	require.Len(t, *f.published, 1)
	assert.Equal(t, events.EventSessionUpdated, (*f.published)[0].Type)
}

func TestWebhook_ConnectionUpdateRepairsLinkByName(t *testing.T) {
	f := newWebhookFixture(t)
	// Simulate a connection that predates the integration link.
	conn := f.connections.byName["inst1"]
	conn.IntegrationID = nil
	f.connections.byIntegration = map[string]*domain.Connection{}

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "connection.update",
		Instance: "inst1",
		Data:     json.RawMessage(`{"state": "connecting"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "i1", f.connections.linked["c1"])
	require.Len(t, f.connections.applied, 1)
	assert.Equal(t, domain.ConnectionStatusOpening, f.connections.applied[0].Status)
}

func TestWebhook_QrcodeUpdatedStoresPayload(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "QRCODE_UPDATED",
		Instance: "inst1",
		Data:     json.RawMessage(`{"qrcode": {"base64": "data:image/png;base64,QQ=="}}`),
	})
	require.NoError(t, err)

	require.Len(t, f.connections.applied, 1)
	update := f.connections.applied[0]
	assert.Equal(t, domain.ConnectionStatusQRCode, update.Status)
	require.NotNil(t, update.Qrcode)
	assert.Equal(t, "data:image/png;base64,QQ==", *update.Qrcode)
}

func TestWebhook_MessagesUpdateSetsAck(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "MESSAGES_UPDATE",
		Instance: "inst1",
		Data:     json.RawMessage(`{"keyId": "MSG1", "status": "READ"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AckRead, f.messages.acks["MSG1"])
}

func TestWebhook_UnknownEventIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	err := f.svc.ProcessEvent(context.Background(), 1, WebhookEnvelope{
		Event:    "PRESENCE_UPDATE",
		Instance: "inst1",
		Data:     json.RawMessage(`{}`),
	})

	require.NoError(t, err)
	assert.Empty(t, *f.published)
}
