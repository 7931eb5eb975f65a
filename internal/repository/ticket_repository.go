package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// FindOrCreateOpen returns the non-closed ticket for the contact on the
	// given connection, reopening the latest closed one or creating a fresh
	// ticket. A reopened ticket keeps its queue unless queueOverride is set;
	// a new ticket starts on defaultQueueID.
	FindOrCreateOpen(ctx context.Context, tenantID int64, contactID, connectionID string, isGroup bool, defaultQueueID, queueOverride *string) (*domain.Ticket, error)
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Ticket, error)
	UpdateSummary(ctx context.Context, tenantID int64, id, lastMessage string, unreadDelta int) error
	Rebind(ctx context.Context, tenantID int64, id, connectionID string) error
	Close(ctx context.Context, tenantID int64, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, tenant_id, contact_id, connection_id, queue_id, user_id, status, is_group, unread_count, last_message, created_at, updated_at`

func (r *ticketRepository) FindOrCreateOpen(ctx context.Context, tenantID int64, contactID, connectionID string, isGroup bool, defaultQueueID, queueOverride *string) (*domain.Ticket, error) {
	latest, err := r.latestForContact(ctx, tenantID, contactID, connectionID)
	if err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	if latest != nil && latest.Status != domain.TicketStatusClosed {
		return latest, nil
	}

	if latest != nil {
		queueID := chooseQueueID(latest.QueueID, queueOverride)
		query := `
            UPDATE tickets SET status='pending', user_id=NULL, queue_id=$1, updated_at=NOW()
            WHERE id=$2 AND tenant_id=$3
            RETURNING ` + ticketColumns
		return r.fetchSingle(ctx, query, queueID, latest.ID, tenantID)
	}

	queueID := chooseQueueID(defaultQueueID, queueOverride)
	query := `
        INSERT INTO tickets (tenant_id, contact_id, connection_id, queue_id, status, is_group)
        VALUES ($1,$2,$3,$4,'pending',$5)
        ON CONFLICT (tenant_id, contact_id, connection_id) WHERE status <> 'closed' DO NOTHING
        RETURNING ` + ticketColumns
	ticket, err := r.fetchSingle(ctx, query, tenantID, contactID, connectionID, queueID, isGroup)
	if err == pgx.ErrNoRows {
		// Lost the insert race; the concurrent winner holds the open ticket.
		return r.latestForContact(ctx, tenantID, contactID, connectionID)
	}
	return ticket, err
}

// chooseQueueID picks the queue for a (re)opened ticket: a caller-supplied
// override wins, otherwise the fallback is preserved. On reopen the fallback
// is the ticket's previous queue, so reopening never clears an assignment.
func chooseQueueID(fallback, override *string) *string {
	if override != nil {
		return override
	}
	return fallback
}

func (r *ticketRepository) latestForContact(ctx context.Context, tenantID int64, contactID, connectionID string) (*domain.Ticket, error) {
	query := `
        SELECT ` + ticketColumns + `
        FROM tickets
        WHERE tenant_id=$1 AND contact_id=$2 AND connection_id=$3
        ORDER BY created_at DESC
        LIMIT 1`
	return r.fetchSingle(ctx, query, tenantID, contactID, connectionID)
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID int64, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 AND tenant_id=$2`
	return r.fetchSingle(ctx, query, id, tenantID)
}

func (r *ticketRepository) UpdateSummary(ctx context.Context, tenantID int64, id, lastMessage string, unreadDelta int) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET last_message=$1, unread_count=unread_count+$2, updated_at=NOW() WHERE id=$3 AND tenant_id=$4`,
		lastMessage, unreadDelta, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Rebind points the ticket at another connection. Rebinding to the current
// connection is a no-op by construction.
func (r *ticketRepository) Rebind(ctx context.Context, tenantID int64, id, connectionID string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET connection_id=$1, updated_at=NOW() WHERE id=$2 AND tenant_id=$3`,
		connectionID, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Close(ctx context.Context, tenantID int64, id string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tickets SET status='closed', unread_count=0, updated_at=NOW() WHERE id=$1 AND tenant_id=$2`,
		id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.ContactID,
		&ticket.ConnectionID,
		&ticket.QueueID,
		&ticket.UserID,
		&ticket.Status,
		&ticket.IsGroup,
		&ticket.UnreadCount,
		&ticket.LastMessage,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
