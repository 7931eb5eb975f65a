package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/whatsdesk/internal/api/http/handlers"
	"github.com/spec-kit/whatsdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Webhook        *handlers.WebhookHandler
	Integrations   *handlers.IntegrationsHandler
	Connections    *handlers.ConnectionsHandler
	Messages       *handlers.MessagesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The webhook endpoint stays outside the
// auth group: gateways authenticate by knowing the tenant-scoped URL, and
// replies must be 200 regardless.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Users.Login)

	app.Post("/integrations/webhook/:tenantId", cfg.Webhook.Receive)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	protected.Post("/integrations", cfg.Integrations.Create)
	protected.Get("/integrations", cfg.Integrations.List)
	protected.Get("/integrations/:id", cfg.Integrations.Get)
	protected.Put("/integrations/:id", cfg.Integrations.Update)
	protected.Delete("/integrations/:id", cfg.Integrations.Delete)

	protected.Post("/connections", cfg.Connections.Create)
	protected.Get("/connections", cfg.Connections.List)
	protected.Get("/connections/:id", cfg.Connections.Get)
	protected.Get("/connections/:id/status", cfg.Connections.Status)
	protected.Post("/connections/:id/reconnect", cfg.Connections.Reconnect)
	protected.Post("/connections/:id/logout", cfg.Connections.Logout)
	protected.Delete("/connections/:id", cfg.Connections.Delete)

	protected.Post("/tickets/:id/messages", cfg.Messages.SendText)
	protected.Post("/tickets/:id/media", cfg.Messages.SendMedia)
}
