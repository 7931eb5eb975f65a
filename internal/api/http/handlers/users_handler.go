package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/whatsdesk/internal/api/dto"
	"github.com/spec-kit/whatsdesk/internal/service"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// UsersHandler manages agent authentication endpoints.
type UsersHandler struct {
	service *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{service: authService}
}

// Login POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.service.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User: dto.UserResponse{
			ID:       result.User.ID,
			TenantID: result.User.TenantID,
			Name:     result.User.Name,
			Email:    result.User.Email,
		},
	}})
}
