package service

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/config"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/repository"
	"github.com/spec-kit/whatsdesk/internal/whatsapp"
)

type fakeConnRepo struct {
	repository.ConnectionRepository
	created []*domain.Connection
	byID    map[string]*domain.Connection
	deleted []string
	applied []repository.StatusUpdate
	queues  map[string][]string
}

func (f *fakeConnRepo) Create(_ context.Context, conn *domain.Connection) error {
	f.created = append(f.created, conn)
	if f.byID == nil {
		f.byID = map[string]*domain.Connection{}
	}
	f.byID[conn.ID] = conn
	return nil
}

func (f *fakeConnRepo) GetByID(_ context.Context, _ int64, id string) (*domain.Connection, error) {
	if conn, ok := f.byID[id]; ok {
		return conn, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeConnRepo) Delete(_ context.Context, _ int64, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConnRepo) ApplyStatus(_ context.Context, _ int64, id string, update repository.StatusUpdate) (*domain.Connection, error) {
	f.applied = append(f.applied, update)
	conn := f.byID[id]
	conn.Status = update.Status
	if update.Qrcode != nil {
		conn.Qrcode = *update.Qrcode
	}
	return conn, nil
}

func (f *fakeConnRepo) BindQueues(_ context.Context, connectionID string, queueIDs []string) error {
	if f.queues == nil {
		f.queues = map[string][]string{}
	}
	f.queues[connectionID] = queueIDs
	return nil
}

type fakeIntegRepo struct {
	repository.IntegrationRepository
	byID map[string]*domain.Integration
}

func (f *fakeIntegRepo) GetByID(_ context.Context, _ int64, id string) (*domain.Integration, error) {
	if integration, ok := f.byID[id]; ok {
		return integration, nil
	}
	return nil, pgx.ErrNoRows
}

type fakeAdmin struct {
	hasInstance bool
	created     []whatsapp.CreateInstanceRequest
	connectQR   string
	state       string
	deleted     []string
	loggedOut   []string
	deleteErr   error
}

func (f *fakeAdmin) CreateInstance(_ context.Context, req whatsapp.CreateInstanceRequest) error {
	f.created = append(f.created, req)
	return nil
}

func (f *fakeAdmin) Connect(context.Context, string) (*whatsapp.ConnectResult, error) {
	return &whatsapp.ConnectResult{QRCode: f.connectQR}, nil
}

func (f *fakeAdmin) ConnectionState(context.Context, string) (string, error) {
	return f.state, nil
}

func (f *fakeAdmin) HasInstance(context.Context, string) (bool, error) {
	return f.hasInstance, nil
}

func (f *fakeAdmin) DeleteInstance(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func (f *fakeAdmin) LogoutInstance(_ context.Context, name string) error {
	f.loggedOut = append(f.loggedOut, name)
	return nil
}

func newConnectionFixture(admin *fakeAdmin) (*ConnectionService, *fakeConnRepo) {
	connRepo := &fakeConnRepo{byID: map[string]*domain.Connection{}}
	integRepo := &fakeIntegRepo{byID: map[string]*domain.Integration{
		"i1": {ID: "i1", TenantID: 1, Type: domain.IntegrationTypeEvolution, BaseURL: "https://gw", APIKey: "k", InstanceName: "inst1", IsActive: true},
	}}
	cfg := config.Config{
		App:      config.AppConfig{PublicURL: "https://desk.example.com"},
		WhatsApp: config.WhatsAppConfig{AllowLocalSessions: true, GatewayTimeoutSec: 5},
	}
	svc := NewConnectionService(connRepo, integRepo, whatsapp.NewSessionRegistry(), events.NewInMemoryDispatcher(), cfg, zap.NewNop())
	svc.WithAdminFactory(func(string, string) whatsapp.GatewayAdmin { return admin })
	return svc, connRepo
}

func TestConnectionCreate_GatewayProvisionsInstance(t *testing.T) {
	admin := &fakeAdmin{connectQR: "data:image/png;base64,QQ=="}
	svc, repo := newConnectionFixture(admin)

	integrationID := "i1"
	conn, err := svc.Create(context.Background(), 1, CreateConnectionInput{
		Name:          "support",
		Provider:      domain.ProviderGateway,
		Subtype:       domain.SubtypeGatewayBaileys,
		IntegrationID: &integrationID,
		QueueIDs:      []string{"q1", "q2"},
	})
	require.NoError(t, err)

	require.Len(t, admin.created, 1)
	req := admin.created[0]
	assert.Equal(t, "inst1", req.InstanceName)
	assert.Equal(t, "WHATSAPP-BAILEYS", req.Integration)
	assert.True(t, req.QRCode)
	assert.Equal(t, "https://desk.example.com/integrations/webhook/1", req.WebhookURL)
	assert.Contains(t, req.WebhookEvents, "MESSAGES_UPSERT")

	assert.Equal(t, domain.ConnectionStatusQRCode, conn.Status)
	assert.Equal(t, "data:image/png;base64,QQ==", conn.Qrcode)
	require.NotNil(t, conn.InstanceName)
	assert.Equal(t, "inst1", *conn.InstanceName)
	assert.Equal(t, []string{"q1", "q2"}, repo.queues[conn.ID])
}

func TestConnectionCreate_ExistingInstanceAdopted(t *testing.T) {
	admin := &fakeAdmin{hasInstance: true, connectQR: "QR"}
	svc, _ := newConnectionFixture(admin)

	integrationID := "i1"
	_, err := svc.Create(context.Background(), 1, CreateConnectionInput{
		Name:          "support",
		Provider:      domain.ProviderGateway,
		Subtype:       domain.SubtypeGatewayBaileys,
		IntegrationID: &integrationID,
	})
	require.NoError(t, err)

	assert.Empty(t, admin.created, "existing instances must not be recreated")
}

func TestConnectionCreate_CloudAPIStartsConnected(t *testing.T) {
	admin := &fakeAdmin{}
	svc, _ := newConnectionFixture(admin)

	integrationID := "i1"
	conn, err := svc.Create(context.Background(), 1, CreateConnectionInput{
		Name:          "cloud",
		Provider:      domain.ProviderGateway,
		Subtype:       domain.SubtypeGatewayCloud,
		IntegrationID: &integrationID,
		Token:         "tok",
		Number:        "5511999998888",
		BusinessID:    "biz",
	})
	require.NoError(t, err)

	require.Len(t, admin.created, 1)
	assert.Equal(t, "WHATSAPP-BUSINESS", admin.created[0].Integration)
	assert.False(t, admin.created[0].QRCode)
	assert.Equal(t, domain.ConnectionStatusConnected, conn.Status)
	assert.Empty(t, conn.Qrcode)
}

func TestConnectionDelete_GatewayTeardownBestEffort(t *testing.T) {
	admin := &fakeAdmin{deleteErr: assert.AnError}
	svc, repo := newConnectionFixture(admin)

	integrationID := "i1"
	instance := "inst1"
	repo.byID["c1"] = &domain.Connection{
		ID: "c1", TenantID: 1, Name: "support",
		Provider: domain.ProviderGateway, IntegrationID: &integrationID, InstanceName: &instance,
	}

	err := svc.Delete(context.Background(), 1, "c1")
	require.NoError(t, err, "gateway failure must not block local teardown")
	assert.Equal(t, []string{"inst1"}, admin.deleted)
	assert.Equal(t, []string{"c1"}, repo.deleted)
}

func TestConnectionStatus_RefreshesFromGateway(t *testing.T) {
	admin := &fakeAdmin{state: "close"}
	svc, repo := newConnectionFixture(admin)

	integrationID := "i1"
	instance := "inst1"
	repo.byID["c1"] = &domain.Connection{
		ID: "c1", TenantID: 1, Status: domain.ConnectionStatusConnected,
		Provider: domain.ProviderGateway, IntegrationID: &integrationID, InstanceName: &instance,
	}

	conn, err := svc.Status(context.Background(), 1, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionStatusDisconnected, conn.Status)
	require.Len(t, repo.applied, 1)
}

func TestConnectionLogout_Gateway(t *testing.T) {
	admin := &fakeAdmin{}
	svc, repo := newConnectionFixture(admin)

	integrationID := "i1"
	instance := "inst1"
	repo.byID["c1"] = &domain.Connection{
		ID: "c1", TenantID: 1, Status: domain.ConnectionStatusConnected,
		Provider: domain.ProviderGateway, IntegrationID: &integrationID, InstanceName: &instance,
	}

	conn, err := svc.Logout(context.Background(), 1, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"inst1"}, admin.loggedOut)
	assert.Equal(t, domain.ConnectionStatusDisconnected, conn.Status)
}
