package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/whatsdesk/internal/api/dto"
	"github.com/spec-kit/whatsdesk/internal/auth"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/service"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// IntegrationsHandler manages gateway credential endpoints.
type IntegrationsHandler struct {
	service *service.IntegrationService
}

// NewIntegrationsHandler constructs handler.
func NewIntegrationsHandler(integrationService *service.IntegrationService) *IntegrationsHandler {
	return &IntegrationsHandler{service: integrationService}
}

// Create POST /integrations.
func (h *IntegrationsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateIntegrationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	integration, err := h.service.Create(c.Context(), principal.TenantID, integrationInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": integrationResponse(integration)})
}

// Update PUT /integrations/:id.
func (h *IntegrationsHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateIntegrationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	integration, err := h.service.Update(c.Context(), principal.TenantID, c.Params("id"), integrationInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": integrationResponse(integration)})
}

// Delete DELETE /integrations/:id.
func (h *IntegrationsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	if err := h.service.Delete(c.Context(), principal.TenantID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Get GET /integrations/:id.
func (h *IntegrationsHandler) Get(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	integration, err := h.service.Get(c.Context(), principal.TenantID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": integrationResponse(integration)})
}

// List GET /integrations.
func (h *IntegrationsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	integrations, err := h.service.List(c.Context(), principal.TenantID)
	if err != nil {
		return err
	}
	items := make([]dto.IntegrationResponse, 0, len(integrations))
	for i := range integrations {
		items = append(items, integrationResponse(&integrations[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func integrationInput(req dto.CreateIntegrationRequest) service.IntegrationInput {
	return service.IntegrationInput{
		Name:         req.Name,
		Type:         req.Type,
		BaseURL:      req.BaseURL,
		APIKey:       req.APIKey,
		InstanceName: req.InstanceName,
		WebhookURL:   req.WebhookURL,
		IsActive:     req.IsActive,
	}
}

func integrationResponse(integration *domain.Integration) dto.IntegrationResponse {
	return dto.IntegrationResponse{
		ID:           integration.ID,
		Name:         integration.Name,
		Type:         integration.Type,
		BaseURL:      integration.BaseURL,
		InstanceName: integration.InstanceName,
		WebhookURL:   integration.WebhookURL,
		IsActive:     integration.IsActive,
		CreatedAt:    integration.CreatedAt,
		UpdatedAt:    integration.UpdatedAt,
	}
}
