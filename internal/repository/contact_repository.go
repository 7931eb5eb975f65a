package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// ContactAttrs carries the fields an upsert may set.
type ContactAttrs struct {
	Name          string
	IsGroup       bool
	ProfilePicURL string
	ConnectionID  *string
}

// ContactRepository encapsulates contact persistence.
type ContactRepository interface {
	// FindOrCreate upserts by (tenant, number). Existing contacts keep their
	// name; profile picture and connection binding are refreshed when provided.
	FindOrCreate(ctx context.Context, tenantID int64, number string, attrs ContactAttrs) (*domain.Contact, error)
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Contact, error)
	UpdateProfilePic(ctx context.Context, tenantID int64, id, url string) error
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository instantiates repository.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

const contactColumns = `id, tenant_id, name, number, is_group, profile_pic_url, connection_id, created_at, updated_at`

func (r *contactRepository) FindOrCreate(ctx context.Context, tenantID int64, number string, attrs ContactAttrs) (*domain.Contact, error) {
	query := `
        INSERT INTO contacts (tenant_id, name, number, is_group, profile_pic_url, connection_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (tenant_id, number) DO UPDATE SET
            profile_pic_url=CASE WHEN EXCLUDED.profile_pic_url <> '' THEN EXCLUDED.profile_pic_url ELSE contacts.profile_pic_url END,
            connection_id=COALESCE(contacts.connection_id, EXCLUDED.connection_id),
            updated_at=NOW()
        RETURNING ` + contactColumns
	var contact domain.Contact
	if err := scanContact(r.pool.QueryRow(ctx, query,
		tenantID,
		attrs.Name,
		number,
		attrs.IsGroup,
		attrs.ProfilePicURL,
		attrs.ConnectionID,
	), &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) GetByID(ctx context.Context, tenantID int64, id string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND tenant_id=$2`
	var contact domain.Contact
	if err := scanContact(r.pool.QueryRow(ctx, query, id, tenantID), &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) UpdateProfilePic(ctx context.Context, tenantID int64, id, url string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE contacts SET profile_pic_url=$1, updated_at=NOW() WHERE id=$2 AND tenant_id=$3`,
		url, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanContact(row pgx.Row, contact *domain.Contact) error {
	return row.Scan(
		&contact.ID,
		&contact.TenantID,
		&contact.Name,
		&contact.Number,
		&contact.IsGroup,
		&contact.ProfilePicURL,
		&contact.ConnectionID,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
}
