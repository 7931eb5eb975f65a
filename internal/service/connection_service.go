package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/config"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/repository"
	"github.com/spec-kit/whatsdesk/internal/whatsapp"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// webhookEvents is what a provisioned instance should forward to us.
var webhookEvents = []string{
	"QRCODE_UPDATED",
	"CONNECTION_UPDATE",
	"MESSAGES_UPSERT",
	"MESSAGES_UPDATE",
}

// ConnectionService owns the connection lifecycle: provisioning gateway
// instances, pairing, disconnecting and teardown. All status writes funnel
// through ApplyStateUpdate so events fire from one place.
type ConnectionService struct {
	connections  repository.ConnectionRepository
	integrations repository.IntegrationRepository
	registry     *whatsapp.SessionRegistry
	dispatcher   events.Dispatcher
	cfg          config.Config
	admin        whatsapp.GatewayAdminFactory
	logger       *zap.Logger
}

func NewConnectionService(
	connections repository.ConnectionRepository,
	integrations repository.IntegrationRepository,
	registry *whatsapp.SessionRegistry,
	dispatcher events.Dispatcher,
	cfg config.Config,
	logger *zap.Logger,
) *ConnectionService {
	s := &ConnectionService{
		connections:  connections,
		integrations: integrations,
		registry:     registry,
		dispatcher:   dispatcher,
		cfg:          cfg,
		logger:       logger,
	}
	s.admin = func(baseURL, apiKey string) whatsapp.GatewayAdmin {
		return whatsapp.NewGatewayClient(baseURL, apiKey, cfg.WhatsApp.GatewayTimeout(), logger)
	}
	return s
}

// WithAdminFactory overrides gateway client construction, for tests.
func (s *ConnectionService) WithAdminFactory(f whatsapp.GatewayAdminFactory) *ConnectionService {
	s.admin = f
	return s
}

// CreateConnectionInput describes a new connection.
type CreateConnectionInput struct {
	Name          string
	Provider      domain.ConnectionProvider
	Subtype       domain.ConnectionSubtype
	IntegrationID *string
	IsDefault     bool
	QueueIDs      []string
	// Cloud API credentials, only for SubtypeGatewayCloud.
	Token      string
	Number     string
	BusinessID string
}

// Create provisions the connection and, for gateway connections, the
// gateway-side instance. Instance creation is idempotent: an instance that
// already exists on the gateway is adopted rather than recreated.
func (s *ConnectionService) Create(ctx context.Context, tenantID int64, in CreateConnectionInput) (*domain.Connection, error) {
	if in.Name == "" {
		return nil, apperrors.NewValidationError("connection name is required", nil)
	}
	if in.Provider == domain.ProviderLocal && !s.cfg.WhatsApp.AllowLocalSessions {
		return nil, apperrors.NewTransportConfigError("local sessions are disabled on this node", nil)
	}

	conn := &domain.Connection{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      in.Name,
		Provider:  in.Provider,
		Subtype:   in.Subtype,
		Status:    domain.ConnectionStatusPending,
		IsDefault: in.IsDefault,
	}

	if in.Provider == domain.ProviderGateway {
		if in.IntegrationID == nil {
			return nil, apperrors.NewTransportConfigError("gateway connections require an integration", nil)
		}
		integration, err := s.integrations.GetByID(ctx, tenantID, *in.IntegrationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("integration", map[string]any{"id": *in.IntegrationID})
			}
			return nil, err
		}
		conn.IntegrationID = &integration.ID
		instanceName := integration.InstanceName
		if instanceName == "" {
			instanceName = in.Name
		}
		conn.InstanceName = &instanceName

		if err := s.provisionInstance(ctx, integration, conn, in); err != nil {
			return nil, err
		}
	}

	if err := s.connections.Create(ctx, conn); err != nil {
		return nil, err
	}
	if len(in.QueueIDs) > 0 {
		if err := s.connections.BindQueues(ctx, conn.ID, in.QueueIDs); err != nil {
			return nil, err
		}
	}

	s.publishSession(ctx, tenantID, "create", conn)
	return conn, nil
}

func (s *ConnectionService) provisionInstance(ctx context.Context, integration *domain.Integration, conn *domain.Connection, in CreateConnectionInput) error {
	admin := s.admin(integration.BaseURL, integration.APIKey)
	instanceName := *conn.InstanceName

	exists, err := admin.HasInstance(ctx, instanceName)
	if err != nil {
		return err
	}
	if !exists {
		req := whatsapp.CreateInstanceRequest{
			InstanceName:  instanceName,
			Integration:   "WHATSAPP-BAILEYS",
			QRCode:        true,
			WebhookURL:    s.webhookURL(conn.TenantID),
			WebhookEvents: webhookEvents,
		}
		if in.Subtype == domain.SubtypeGatewayCloud {
			req.Integration = "WHATSAPP-BUSINESS"
			req.QRCode = false
			req.Token = in.Token
			req.Number = in.Number
			req.BusinessID = in.BusinessID
		}
		if err := admin.CreateInstance(ctx, req); err != nil {
			return err
		}
	}

	// Cloud API instances have no pairing step; they come up connected.
	if in.Subtype == domain.SubtypeGatewayCloud {
		conn.Status = domain.ConnectionStatusConnected
		return nil
	}

	result, err := admin.Connect(ctx, instanceName)
	if err != nil {
		return err
	}
	if result.QRCode != "" {
		conn.Status = domain.ConnectionStatusQRCode
		conn.Qrcode = result.QRCode
	} else {
		conn.Status = domain.ConnectionStatusOpening
	}
	return nil
}

// Reconnect re-requests pairing for a disconnected gateway connection.
func (s *ConnectionService) Reconnect(ctx context.Context, tenantID int64, id string) (*domain.Connection, error) {
	conn, admin, instanceName, err := s.gatewayFor(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	result, err := admin.Connect(ctx, instanceName)
	if err != nil {
		return nil, err
	}

	update := repository.StatusUpdate{Status: domain.ConnectionStatusOpening}
	if result.QRCode != "" {
		update.Status = domain.ConnectionStatusQRCode
		update.Qrcode = &result.QRCode
	}
	updated, err := s.connections.ApplyStatus(ctx, tenantID, conn.ID, update)
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, tenantID, "update", updated)
	return updated, nil
}

// Logout signs the connection out without deleting it.
func (s *ConnectionService) Logout(ctx context.Context, tenantID int64, id string) (*domain.Connection, error) {
	conn, err := s.connections.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("connection", map[string]any{"id": id})
		}
		return nil, err
	}

	if conn.UsesGateway() {
		_, admin, instanceName, err := s.gatewayFor(ctx, tenantID, id)
		if err == nil {
			if err := admin.LogoutInstance(ctx, instanceName); err != nil && !apperrors.IsCode(err, "ERR_WAPP_INSTANCE_NOT_FOUND") {
				return nil, err
			}
		}
	} else {
		s.registry.Remove(conn.ID)
	}

	empty := ""
	updated, err := s.connections.ApplyStatus(ctx, tenantID, conn.ID, repository.StatusUpdate{
		Status: domain.ConnectionStatusDisconnected,
		Qrcode: &empty,
	})
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, tenantID, "update", updated)
	return updated, nil
}

// Delete tears the connection down. External teardown is best effort: a
// gateway that no longer knows the instance must not block local cleanup.
func (s *ConnectionService) Delete(ctx context.Context, tenantID int64, id string) error {
	conn, err := s.connections.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("connection", map[string]any{"id": id})
		}
		return err
	}

	if conn.UsesGateway() {
		if _, admin, instanceName, gerr := s.gatewayFor(ctx, tenantID, id); gerr == nil {
			if derr := admin.DeleteInstance(ctx, instanceName); derr != nil {
				s.logger.Warn("gateway instance teardown failed",
					zap.String("instance", instanceName),
					zap.Error(derr))
			}
		}
	} else {
		s.registry.Remove(conn.ID)
	}

	if err := s.connections.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.publishSession(ctx, tenantID, "delete", conn)
	return nil
}

// Status refreshes the connection's status from the gateway and persists
// the mapped token.
func (s *ConnectionService) Status(ctx context.Context, tenantID int64, id string) (*domain.Connection, error) {
	conn, admin, instanceName, err := s.gatewayFor(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	token, err := admin.ConnectionState(ctx, instanceName)
	if err != nil {
		return nil, err
	}
	status := whatsapp.MapStateToken(token)
	if status == conn.Status {
		return conn, nil
	}

	update := repository.StatusUpdate{Status: status}
	if status == domain.ConnectionStatusConnected {
		empty := ""
		update.Qrcode = &empty
		update.ResetRetries = true
	}
	updated, err := s.connections.ApplyStatus(ctx, tenantID, conn.ID, update)
	if err != nil {
		return nil, err
	}
	s.publishSession(ctx, tenantID, "update", updated)
	return updated, nil
}

// List returns the tenant's connections.
func (s *ConnectionService) List(ctx context.Context, tenantID int64) ([]domain.Connection, error) {
	return s.connections.List(ctx, tenantID)
}

// Get returns one connection.
func (s *ConnectionService) Get(ctx context.Context, tenantID int64, id string) (*domain.Connection, error) {
	conn, err := s.connections.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("connection", map[string]any{"id": id})
		}
		return nil, err
	}
	return conn, nil
}

// Queues lists the queues bound to a connection in routing order.
func (s *ConnectionService) Queues(ctx context.Context, tenantID int64, id string) ([]domain.Queue, error) {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return s.connections.Queues(ctx, id)
}

func (s *ConnectionService) gatewayFor(ctx context.Context, tenantID int64, id string) (*domain.Connection, whatsapp.GatewayAdmin, string, error) {
	conn, err := s.connections.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, "", apperrors.NewNotFound("connection", map[string]any{"id": id})
		}
		return nil, nil, "", err
	}
	if !conn.UsesGateway() || conn.InstanceName == nil {
		return nil, nil, "", apperrors.NewTransportConfigError("connection has no gateway instance", nil)
	}
	integration, err := s.integrations.GetByID(ctx, tenantID, *conn.IntegrationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, "", apperrors.NewTransportConfigError("connection references a missing integration", nil)
		}
		return nil, nil, "", err
	}
	return conn, s.admin(integration.BaseURL, integration.APIKey), *conn.InstanceName, nil
}

func (s *ConnectionService) webhookURL(tenantID int64) string {
	if s.cfg.App.PublicURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/integrations/webhook/%d", s.cfg.App.PublicURL, tenantID)
}

func (s *ConnectionService) publishSession(ctx context.Context, tenantID int64, action string, conn *domain.Connection) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventSessionUpdated,
		TenantID:  tenantID,
		Timestamp: time.Now(),
		Payload:   events.SessionUpdatedPayload{Action: action, Connection: conn},
	})
}
