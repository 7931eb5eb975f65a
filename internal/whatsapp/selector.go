package whatsapp

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/domain"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// TransportPolicy gates which transport families are eligible on this node.
// Local sessions only make sense where the pairing actually lives.
type TransportPolicy struct {
	AllowLocalSessions bool
}

// ConnectionStore is the slice of the connection repository the selector
// needs.
type ConnectionStore interface {
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Connection, error)
	FindDefault(ctx context.Context, tenantID int64) (*domain.Connection, error)
	FindGateway(ctx context.Context, tenantID int64) (*domain.Connection, error)
}

// IntegrationStore resolves gateway credentials for a connection.
type IntegrationStore interface {
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Integration, error)
}

// TicketStore rebinds a ticket after a connection repair.
type TicketStore interface {
	Rebind(ctx context.Context, tenantID int64, ticketID, connectionID string) error
}

// GatewayFactory builds a gateway API client for one integration's
// credentials. Injected so tests can substitute a fake.
type GatewayFactory func(baseURL, apiKey string) GatewayAPI

// ProviderSelector resolves a ticket to a usable connection plus the
// transport that can deliver over it. When the ticket's bound connection is
// gone or unusable it repairs the binding to a surviving connection.
type ProviderSelector struct {
	connections  ConnectionStore
	integrations IntegrationStore
	tickets      TicketStore
	registry     *SessionRegistry
	resolver     *ReplyResolver
	policy       TransportPolicy
	factory      GatewayFactory
	timeout      time.Duration
	logger       *zap.Logger
}

func NewProviderSelector(
	connections ConnectionStore,
	integrations IntegrationStore,
	tickets TicketStore,
	registry *SessionRegistry,
	resolver *ReplyResolver,
	policy TransportPolicy,
	timeout time.Duration,
	logger *zap.Logger,
) *ProviderSelector {
	s := &ProviderSelector{
		connections:  connections,
		integrations: integrations,
		tickets:      tickets,
		registry:     registry,
		resolver:     resolver,
		policy:       policy,
		timeout:      timeout,
		logger:       logger,
	}
	s.factory = func(baseURL, apiKey string) GatewayAPI {
		return NewGatewayClient(baseURL, apiKey, timeout, logger)
	}
	return s
}

// WithFactory overrides gateway client construction, for tests.
func (s *ProviderSelector) WithFactory(f GatewayFactory) *ProviderSelector {
	s.factory = f
	return s
}

// Select resolves the connection and transport for an outbound send on the
// ticket. Repairs (rebinding to a fallback connection) persist back to the
// ticket so later sends skip the fallback walk.
func (s *ProviderSelector) Select(ctx context.Context, tenantID int64, ticket *domain.Ticket) (*domain.Connection, Transport, error) {
	conn, err := s.resolve(ctx, tenantID, ticket)
	if err != nil {
		return nil, nil, err
	}

	transport, err := s.transportFor(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	return conn, transport, nil
}

func (s *ProviderSelector) resolve(ctx context.Context, tenantID int64, ticket *domain.Ticket) (*domain.Connection, error) {
	if ticket.ConnectionID != nil {
		conn, err := s.connections.GetByID(ctx, tenantID, *ticket.ConnectionID)
		if err == nil && s.usable(conn) {
			return conn, nil
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// Bound connection is gone or down; fall through to repair.
	}

	conn, err := s.fallback(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, apperrors.NewNoConnectionError()
	}

	if ticket.ConnectionID == nil || *ticket.ConnectionID != conn.ID {
		if err := s.tickets.Rebind(ctx, tenantID, ticket.ID, conn.ID); err != nil {
			return nil, err
		}
		s.logger.Info("ticket rebound to fallback connection",
			zap.String("ticket_id", ticket.ID),
			zap.String("connection_id", conn.ID))
		ticket.ConnectionID = &conn.ID
	}
	return conn, nil
}

func (s *ProviderSelector) fallback(ctx context.Context, tenantID int64) (*domain.Connection, error) {
	conn, err := s.connections.FindDefault(ctx, tenantID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if conn != nil && s.usable(conn) {
		return conn, nil
	}

	conn, err = s.connections.FindGateway(ctx, tenantID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if conn != nil && s.usable(conn) {
		return conn, nil
	}
	return nil, nil
}

// usable filters out connections this node cannot deliver over: gateway
// connections are always candidates, local sessions only when the policy
// allows them and the session is actually registered here.
func (s *ProviderSelector) usable(conn *domain.Connection) bool {
	if conn == nil {
		return false
	}
	if conn.UsesGateway() {
		return true
	}
	if !s.policy.AllowLocalSessions {
		return false
	}
	_, ok := s.registry.Get(conn.ID)
	return ok
}

func (s *ProviderSelector) transportFor(ctx context.Context, conn *domain.Connection) (Transport, error) {
	if conn.UsesGateway() {
		integration, err := s.integrations.GetByID(ctx, conn.TenantID, *conn.IntegrationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewTransportConfigError("connection references a missing integration", map[string]any{
					"connection_id": conn.ID,
				})
			}
			return nil, err
		}
		if integration.BaseURL == "" || integration.APIKey == "" {
			return nil, apperrors.NewTransportConfigError("integration is missing gateway credentials", map[string]any{
				"integration_id": integration.ID,
			})
		}
		api := s.factory(integration.BaseURL, integration.APIKey)
		return NewGatewayTransport(api, s.resolver, s.logger), nil
	}

	if !s.policy.AllowLocalSessions {
		return nil, apperrors.NewTransportConfigError("local sessions are disabled on this node", nil)
	}
	return NewLocalSessionTransport(s.registry, s.resolver, s.logger), nil
}

// GatewayAPIFor builds a gateway client for the connection's integration,
// for callers that need raw gateway calls (media re-fetch, profile pictures).
func (s *ProviderSelector) GatewayAPIFor(ctx context.Context, conn *domain.Connection) (GatewayAPI, string, error) {
	if !conn.UsesGateway() || conn.InstanceName == nil {
		return nil, "", apperrors.NewTransportConfigError("connection has no gateway binding", nil)
	}
	integration, err := s.integrations.GetByID(ctx, conn.TenantID, *conn.IntegrationID)
	if err != nil {
		return nil, "", err
	}
	return s.factory(integration.BaseURL, integration.APIKey), *conn.InstanceName, nil
}
