package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/whatsdesk/internal/api/dto"
	"github.com/spec-kit/whatsdesk/internal/auth"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/service"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// ConnectionsHandler manages connection lifecycle endpoints.
type ConnectionsHandler struct {
	service *service.ConnectionService
}

// NewConnectionsHandler constructs handler.
func NewConnectionsHandler(connectionService *service.ConnectionService) *ConnectionsHandler {
	return &ConnectionsHandler{service: connectionService}
}

// Create POST /connections.
func (h *ConnectionsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	conn, err := h.service.Create(c.Context(), principal.TenantID, service.CreateConnectionInput{
		Name:          req.Name,
		Provider:      domain.ConnectionProvider(req.Provider),
		Subtype:       domain.ConnectionSubtype(req.Subtype),
		IntegrationID: req.IntegrationID,
		IsDefault:     req.IsDefault,
		QueueIDs:      req.QueueIDs,
		Token:         req.Token,
		Number:        req.Number,
		BusinessID:    req.BusinessID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": connectionResponse(conn)})
}

// List GET /connections.
func (h *ConnectionsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	connections, err := h.service.List(c.Context(), principal.TenantID)
	if err != nil {
		return err
	}
	items := make([]dto.ConnectionResponse, 0, len(connections))
	for i := range connections {
		items = append(items, connectionResponse(&connections[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /connections/:id.
func (h *ConnectionsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	conn, err := h.service.Get(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	queues, err := h.service.Queues(c.Context(), principal.TenantID, conn.ID)
	if err != nil {
		return err
	}
	queueItems := make([]dto.QueueResponse, 0, len(queues))
	for _, q := range queues {
		queueItems = append(queueItems, dto.QueueResponse{ID: q.ID, Name: q.Name, Color: q.Color})
	}
	return c.JSON(fiber.Map{"data": connectionResponse(conn), "queues": queueItems})
}

// Status GET /connections/:id/status.
func (h *ConnectionsHandler) Status(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	conn, err := h.service.Status(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": connectionResponse(conn)})
}

// Reconnect POST /connections/:id/reconnect.
func (h *ConnectionsHandler) Reconnect(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	conn, err := h.service.Reconnect(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": connectionResponse(conn)})
}

// Logout POST /connections/:id/logout.
func (h *ConnectionsHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	conn, err := h.service.Logout(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": connectionResponse(conn)})
}

// Delete DELETE /connections/:id.
func (h *ConnectionsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if err := h.service.Delete(c.Context(), principal.TenantID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func connectionResponse(conn *domain.Connection) dto.ConnectionResponse {
	return dto.ConnectionResponse{
		ID:            conn.ID,
		Name:          conn.Name,
		Provider:      string(conn.Provider),
		Subtype:       string(conn.Subtype),
		Status:        string(conn.Status),
		IntegrationID: conn.IntegrationID,
		InstanceName:  conn.InstanceName,
		Qrcode:        conn.Qrcode,
		Retries:       conn.Retries,
		IsDefault:     conn.IsDefault,
		CreatedAt:     conn.CreatedAt,
		UpdatedAt:     conn.UpdatedAt,
	}
}
