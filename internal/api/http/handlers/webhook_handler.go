package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/service"
)

// WebhookHandler receives gateway callbacks. It always acknowledges with
// 200: gateways retry on anything else, and a permanently broken payload
// would otherwise be redelivered forever.
type WebhookHandler struct {
	service *service.WebhookService
	logger  *zap.Logger
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(webhookService *service.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: webhookService, logger: logger}
}

// Receive POST /integrations/webhook/:tenantId.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	tenantID, err := strconv.ParseInt(c.Params("tenantId"), 10, 64)
	if err != nil {
		h.logger.Warn("webhook with invalid tenant id", zap.String("tenant", c.Params("tenantId")))
		return c.JSON(fiber.Map{"status": "ok"})
	}

	var env service.WebhookEnvelope
	if err := json.Unmarshal(c.Body(), &env); err != nil {
		h.logger.Warn("webhook body undecodable", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return c.JSON(fiber.Map{"status": "ok"})
	}

	// Errors are logged inside; the gateway always gets a 200.
	_ = h.service.ProcessEvent(c.Context(), tenantID, env)
	return c.JSON(fiber.Map{"status": "ok"})
}
