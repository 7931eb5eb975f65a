package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// MessageRepository encapsulates message persistence. The (tenant, id)
// primary key makes the transport message id the dedup boundary.
type MessageRepository interface {
	ExistsByID(ctx context.Context, tenantID int64, id string) (bool, error)
	// Create inserts the message; returns false without error when a row
	// with the same id already exists (concurrent duplicate delivery).
	Create(ctx context.Context, msg *domain.Message) (bool, error)
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Message, error)
	// LastInboundAddress returns the captured reply address of the most
	// recent inbound message on the ticket, or "" when none exists.
	LastInboundAddress(ctx context.Context, ticketID string) (string, error)
	SetAck(ctx context.Context, tenantID int64, id string, ack int) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository instantiates repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) ExistsByID(ctx context.Context, tenantID int64, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE tenant_id=$1 AND id=$2)`,
		tenantID, id).Scan(&exists)
	return exists, err
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) (bool, error) {
	const query = `
        INSERT INTO messages (id, tenant_id, ticket_id, contact_id, body, from_me, read, media_kind, media_url, quoted_msg_id, ack, remote_jid, participant, data_json)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (tenant_id, id) DO NOTHING
        RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		msg.ID,
		msg.TenantID,
		msg.TicketID,
		msg.ContactID,
		msg.Body,
		msg.FromMe,
		msg.Read,
		msg.MediaKind,
		msg.MediaURL,
		msg.QuotedMsgID,
		msg.Ack,
		msg.RemoteJid,
		msg.Participant,
		msg.DataJSON,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *messageRepository) GetByID(ctx context.Context, tenantID int64, id string) (*domain.Message, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, contact_id, body, from_me, read, media_kind, media_url, quoted_msg_id, ack, remote_jid, participant, data_json, created_at, updated_at
        FROM messages WHERE tenant_id=$1 AND id=$2`
	var msg domain.Message
	if err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&msg.ID,
		&msg.TenantID,
		&msg.TicketID,
		&msg.ContactID,
		&msg.Body,
		&msg.FromMe,
		&msg.Read,
		&msg.MediaKind,
		&msg.MediaURL,
		&msg.QuotedMsgID,
		&msg.Ack,
		&msg.RemoteJid,
		&msg.Participant,
		&msg.DataJSON,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) LastInboundAddress(ctx context.Context, ticketID string) (string, error) {
	const query = `
        SELECT remote_jid FROM messages
        WHERE ticket_id=$1 AND NOT from_me
        ORDER BY created_at DESC
        LIMIT 1`
	var address string
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&address); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return address, nil
}

func (r *messageRepository) SetAck(ctx context.Context, tenantID int64, id string, ack int) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE messages SET ack=GREATEST(ack, $1), updated_at=NOW() WHERE tenant_id=$2 AND id=$3`,
		ack, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
