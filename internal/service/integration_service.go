package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/domain"
	"github.com/spec-kit/whatsdesk/internal/repository"
	apperrors "github.com/spec-kit/whatsdesk/pkg/util"
)

// IntegrationService manages gateway credential records.
type IntegrationService struct {
	integrations repository.IntegrationRepository
	logger       *zap.Logger
}

func NewIntegrationService(integrations repository.IntegrationRepository, logger *zap.Logger) *IntegrationService {
	return &IntegrationService{integrations: integrations, logger: logger}
}

// IntegrationInput carries create/update fields.
type IntegrationInput struct {
	Name         string
	Type         string
	BaseURL      string
	APIKey       string
	InstanceName string
	WebhookURL   string
	IsActive     bool
}

func (in IntegrationInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.NewValidationError("integration name is required", nil)
	}
	if in.Type != domain.IntegrationTypeEvolution {
		return apperrors.NewValidationError("unsupported integration type", map[string]any{"type": in.Type})
	}
	if strings.TrimSpace(in.BaseURL) == "" || strings.TrimSpace(in.APIKey) == "" {
		return apperrors.NewValidationError("base url and api key are required", nil)
	}
	return nil
}

func (s *IntegrationService) Create(ctx context.Context, tenantID int64, in IntegrationInput) (*domain.Integration, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	integration := &domain.Integration{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Name:         in.Name,
		Type:         in.Type,
		BaseURL:      in.BaseURL,
		APIKey:       in.APIKey,
		InstanceName: in.InstanceName,
		WebhookURL:   in.WebhookURL,
		IsActive:     in.IsActive,
	}
	if err := s.integrations.Create(ctx, integration); err != nil {
		return nil, err
	}
	return integration, nil
}

func (s *IntegrationService) Update(ctx context.Context, tenantID int64, id string, in IntegrationInput) (*domain.Integration, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	integration, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	integration.Name = in.Name
	integration.Type = in.Type
	integration.BaseURL = in.BaseURL
	integration.APIKey = in.APIKey
	integration.InstanceName = in.InstanceName
	integration.WebhookURL = in.WebhookURL
	integration.IsActive = in.IsActive
	if err := s.integrations.Update(ctx, integration); err != nil {
		return nil, err
	}
	return integration, nil
}

func (s *IntegrationService) Delete(ctx context.Context, tenantID int64, id string) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.integrations.Delete(ctx, tenantID, id)
}

func (s *IntegrationService) Get(ctx context.Context, tenantID int64, id string) (*domain.Integration, error) {
	integration, err := s.integrations.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("integration", map[string]any{"id": id})
		}
		return nil, err
	}
	return integration, nil
}

func (s *IntegrationService) List(ctx context.Context, tenantID int64) ([]domain.Integration, error) {
	return s.integrations.List(ctx, tenantID)
}
