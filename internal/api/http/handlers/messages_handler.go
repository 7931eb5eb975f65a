package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/whatsdesk/internal/api/dto"
	"github.com/spec-kit/whatsdesk/internal/auth"
	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/service"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// MessagesHandler manages agent sends on tickets.
type MessagesHandler struct {
	service *service.SendService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(sendService *service.SendService) *MessagesHandler {
	return &MessagesHandler{service: sendService}
}

// SendText POST /tickets/:id/messages.
func (h *MessagesHandler) SendText(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}

	msg, err := h.service.SendText(c.Context(), principal.TenantID, service.SendTextInput{
		TicketID:    c.Params("id"),
		Body:        req.Body,
		Agent:       principal.User,
		QuotedMsgID: req.QuotedMsgID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// SendMedia POST /tickets/:id/media.
func (h *MessagesHandler) SendMedia(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.SendMediaRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.service.SendMedia(c.Context(), principal.TenantID, service.SendMediaInput{
		TicketID:  c.Params("id"),
		MediaPath: req.MediaPath,
		MediaKind: domain.MediaKind(req.MediaKind),
		Caption:   req.Caption,
		Agent:     principal.User,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:          msg.ID,
		TicketID:    msg.TicketID,
		ContactID:   msg.ContactID,
		Body:        msg.Body,
		FromMe:      msg.FromMe,
		MediaKind:   string(msg.MediaKind),
		MediaURL:    msg.MediaURL,
		QuotedMsgID: msg.QuotedMsgID,
		Ack:         msg.Ack,
		CreatedAt:   msg.CreatedAt,
	}
}
