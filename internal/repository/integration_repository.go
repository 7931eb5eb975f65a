package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// IntegrationRepository encapsulates gateway credential persistence.
type IntegrationRepository interface {
	Create(ctx context.Context, integration *domain.Integration) error
	Update(ctx context.Context, integration *domain.Integration) error
	Delete(ctx context.Context, tenantID int64, id string) error
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Integration, error)
	GetActiveByInstance(ctx context.Context, tenantID int64, instanceName string) (*domain.Integration, error)
	List(ctx context.Context, tenantID int64) ([]domain.Integration, error)
}

type integrationRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrationRepository instantiates repository.
func NewIntegrationRepository(pool *pgxpool.Pool) IntegrationRepository {
	return &integrationRepository{pool: pool}
}

const integrationColumns = `id, tenant_id, name, type, base_url, api_key, instance_name, webhook_url, is_active, created_at, updated_at`

func (r *integrationRepository) Create(ctx context.Context, integration *domain.Integration) error {
	const query = `
        INSERT INTO integrations (id, tenant_id, name, type, base_url, api_key, instance_name, webhook_url, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		integration.ID,
		integration.TenantID,
		integration.Name,
		integration.Type,
		integration.BaseURL,
		integration.APIKey,
		integration.InstanceName,
		integration.WebhookURL,
		integration.IsActive,
	).Scan(&integration.CreatedAt, &integration.UpdatedAt)
}

func (r *integrationRepository) Update(ctx context.Context, integration *domain.Integration) error {
	const query = `
        UPDATE integrations SET name=$1, base_url=$2, api_key=$3, instance_name=$4, webhook_url=$5,
            is_active=$6, updated_at=NOW()
        WHERE id=$7 AND tenant_id=$8`
	cmd, err := r.pool.Exec(ctx, query,
		integration.Name,
		integration.BaseURL,
		integration.APIKey,
		integration.InstanceName,
		integration.WebhookURL,
		integration.IsActive,
		integration.ID,
		integration.TenantID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *integrationRepository) Delete(ctx context.Context, tenantID int64, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM integrations WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *integrationRepository) GetByID(ctx context.Context, tenantID int64, id string) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id=$1 AND tenant_id=$2`
	return r.fetchSingle(ctx, query, id, tenantID)
}

func (r *integrationRepository) GetActiveByInstance(ctx context.Context, tenantID int64, instanceName string) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + `
        FROM integrations
        WHERE tenant_id=$1 AND type=$2 AND instance_name=$3 AND is_active`
	return r.fetchSingle(ctx, query, tenantID, domain.IntegrationTypeEvolution, instanceName)
}

func (r *integrationRepository) List(ctx context.Context, tenantID int64) ([]domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE tenant_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Integration
	for rows.Next() {
		var integration domain.Integration
		if err := scanIntegration(rows, &integration); err != nil {
			return nil, err
		}
		result = append(result, integration)
	}
	return result, rows.Err()
}

func (r *integrationRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Integration, error) {
	var integration domain.Integration
	if err := scanIntegration(r.pool.QueryRow(ctx, query, args...), &integration); err != nil {
		return nil, err
	}
	return &integration, nil
}

func scanIntegration(row pgx.Row, integration *domain.Integration) error {
	return row.Scan(
		&integration.ID,
		&integration.TenantID,
		&integration.Name,
		&integration.Type,
		&integration.BaseURL,
		&integration.APIKey,
		&integration.InstanceName,
		&integration.WebhookURL,
		&integration.IsActive,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
}
