package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/whatsdesk/internal/api/http"
	"github.com/spec-kit/whatsdesk/internal/api/http/handlers"
	"github.com/spec-kit/whatsdesk/internal/auth"
	"github.com/spec-kit/whatsdesk/internal/config"
	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/notify"
	"github.com/spec-kit/whatsdesk/internal/observability"
	"github.com/spec-kit/whatsdesk/internal/persistence"
	"github.com/spec-kit/whatsdesk/internal/repository"
	"github.com/spec-kit/whatsdesk/internal/service"
	"github.com/spec-kit/whatsdesk/internal/whatsapp"
	"github.com/spec-kit/whatsdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	integrationRepo := repository.NewIntegrationRepository(pool)
	connectionRepo := repository.NewConnectionRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	bus := notify.NewRedisBus(redis.Client, logger)
	worker.StartNotificationWorker(dispatcher, bus)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo)

	registry := whatsapp.NewSessionRegistry()
	resolver := whatsapp.NewReplyResolver(messageRepo)
	media := whatsapp.NewMediaRetriever(cfg.WhatsApp.MediaDir, logger)
	policy := whatsapp.TransportPolicy{AllowLocalSessions: cfg.WhatsApp.AllowLocalSessions}
	selector := whatsapp.NewProviderSelector(
		connectionRepo, integrationRepo, ticketRepo,
		registry, resolver, policy, cfg.WhatsApp.GatewayTimeout(), logger,
	)
	gatewayFactory := func(baseURL, apiKey string) whatsapp.GatewayAPI {
		return whatsapp.NewGatewayClient(baseURL, apiKey, cfg.WhatsApp.GatewayTimeout(), logger)
	}

	authService := service.NewAuthService(userRepo, tokens, logger)
	integrationService := service.NewIntegrationService(integrationRepo, logger)
	connectionService := service.NewConnectionService(connectionRepo, integrationRepo, registry, dispatcher, *cfg, logger)
	sendService := service.NewSendService(ticketRepo, contactRepo, messageRepo, selector, dispatcher, metrics, logger)
	webhookService := service.NewWebhookService(
		integrationRepo, connectionRepo, contactRepo, ticketRepo, messageRepo,
		media, dispatcher, metrics, cfg.WhatsApp, gatewayFactory, logger,
	)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Webhook:        handlers.NewWebhookHandler(webhookService, logger),
		Integrations:   handlers.NewIntegrationsHandler(integrationService),
		Connections:    handlers.NewConnectionsHandler(connectionService),
		Messages:       handlers.NewMessagesHandler(sendService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
