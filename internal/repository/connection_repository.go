package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// StatusUpdate mutates a connection's lifecycle fields in one conditional
// write. Only the connection state machine issues these.
type StatusUpdate struct {
	Status       domain.ConnectionStatus
	Qrcode       *string
	ResetRetries bool
}

// ConnectionRepository encapsulates connection persistence.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *domain.Connection) error
	Delete(ctx context.Context, tenantID int64, id string) error
	GetByID(ctx context.Context, tenantID int64, id string) (*domain.Connection, error)
	GetByIntegration(ctx context.Context, tenantID int64, integrationID string) (*domain.Connection, error)
	GetByName(ctx context.Context, tenantID int64, name string) (*domain.Connection, error)
	List(ctx context.Context, tenantID int64) ([]domain.Connection, error)
	ApplyStatus(ctx context.Context, tenantID int64, id string, update StatusUpdate) (*domain.Connection, error)
	LinkIntegration(ctx context.Context, tenantID int64, id, integrationID string) error
	FindDefault(ctx context.Context, tenantID int64) (*domain.Connection, error)
	FindGateway(ctx context.Context, tenantID int64) (*domain.Connection, error)
	BindQueues(ctx context.Context, connectionID string, queueIDs []string) error
	Queues(ctx context.Context, connectionID string) ([]domain.Queue, error)
	DefaultQueueID(ctx context.Context, connectionID string) (*string, error)
}

type connectionRepository struct {
	pool *pgxpool.Pool
}

// NewConnectionRepository instantiates repository.
func NewConnectionRepository(pool *pgxpool.Pool) ConnectionRepository {
	return &connectionRepository{pool: pool}
}

const connectionColumns = `id, tenant_id, name, provider, subtype, status, integration_id, instance_name, qrcode, retries, is_default, created_at, updated_at`

func (r *connectionRepository) Create(ctx context.Context, conn *domain.Connection) error {
	const query = `
        INSERT INTO connections (id, tenant_id, name, provider, subtype, status, integration_id, instance_name, qrcode, is_default)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		conn.ID,
		conn.TenantID,
		conn.Name,
		conn.Provider,
		conn.Subtype,
		conn.Status,
		conn.IntegrationID,
		conn.InstanceName,
		conn.Qrcode,
		conn.IsDefault,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
}

func (r *connectionRepository) Delete(ctx context.Context, tenantID int64, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM connections WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, tenantID int64, id string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id=$1 AND tenant_id=$2`
	return r.fetchSingle(ctx, query, id, tenantID)
}

func (r *connectionRepository) GetByIntegration(ctx context.Context, tenantID int64, integrationID string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id=$1 AND integration_id=$2`
	return r.fetchSingle(ctx, query, tenantID, integrationID)
}

func (r *connectionRepository) GetByName(ctx context.Context, tenantID int64, name string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id=$1 AND name=$2`
	return r.fetchSingle(ctx, query, tenantID, name)
}

func (r *connectionRepository) List(ctx context.Context, tenantID int64) ([]domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE tenant_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Connection
	for rows.Next() {
		var conn domain.Connection
		if err := scanConnection(rows, &conn); err != nil {
			return nil, err
		}
		result = append(result, conn)
	}
	return result, rows.Err()
}

// ApplyStatus is a single-row conditional update: retries reset to zero on
// reaching CONNECTED, qrcode overwritten only when a payload is supplied.
// Replaying the same update is a no-op beyond the timestamp bump.
func (r *connectionRepository) ApplyStatus(ctx context.Context, tenantID int64, id string, update StatusUpdate) (*domain.Connection, error) {
	query := `
        UPDATE connections SET
            status=$1,
            qrcode=COALESCE($2, qrcode),
            retries=CASE WHEN $3 THEN 0 ELSE retries END,
            updated_at=NOW()
        WHERE id=$4 AND tenant_id=$5
        RETURNING ` + connectionColumns
	return r.fetchSingle(ctx, query, update.Status, update.Qrcode, update.ResetRetries, id, tenantID)
}

func (r *connectionRepository) LinkIntegration(ctx context.Context, tenantID int64, id, integrationID string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE connections SET integration_id=$1, updated_at=NOW() WHERE id=$2 AND tenant_id=$3`,
		integrationID, id, tenantID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *connectionRepository) FindDefault(ctx context.Context, tenantID int64) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + `
        FROM connections WHERE tenant_id=$1 AND is_default AND status='CONNECTED'`
	return r.fetchSingle(ctx, query, tenantID)
}

// FindGateway returns a gateway-backed connection for the tenant, preferring
// CONNECTED ones, then any gateway connection at all.
func (r *connectionRepository) FindGateway(ctx context.Context, tenantID int64) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + `
        FROM connections
        WHERE tenant_id=$1 AND integration_id IS NOT NULL
        ORDER BY (status='CONNECTED') DESC, created_at
        LIMIT 1`
	return r.fetchSingle(ctx, query, tenantID)
}

func (r *connectionRepository) BindQueues(ctx context.Context, connectionID string, queueIDs []string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM connection_queues WHERE connection_id=$1`, connectionID); err != nil {
		return err
	}
	for i, queueID := range queueIDs {
		if _, err := r.pool.Exec(ctx,
			`INSERT INTO connection_queues (connection_id, queue_id, position) VALUES ($1,$2,$3)`,
			connectionID, queueID, i); err != nil {
			return err
		}
	}
	return nil
}

// Queues lists the queues bound to the connection in routing order.
func (r *connectionRepository) Queues(ctx context.Context, connectionID string) ([]domain.Queue, error) {
	const query = `
        SELECT q.id, q.tenant_id, q.name, q.color, q.created_at, q.updated_at
        FROM queues q
        JOIN connection_queues cq ON cq.queue_id = q.id
        WHERE cq.connection_id=$1
        ORDER BY cq.position, q.id`
	rows, err := r.pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []domain.Queue
	for rows.Next() {
		var q domain.Queue
		if err := rows.Scan(&q.ID, &q.TenantID, &q.Name, &q.Color, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, rows.Err()
}

// DefaultQueueID returns the queue with the lowest explicit order for the
// connection, or nil when no queue is bound.
func (r *connectionRepository) DefaultQueueID(ctx context.Context, connectionID string) (*string, error) {
	const query = `
        SELECT queue_id FROM connection_queues
        WHERE connection_id=$1
        ORDER BY position, queue_id
        LIMIT 1`
	var queueID string
	if err := r.pool.QueryRow(ctx, query, connectionID).Scan(&queueID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &queueID, nil
}

func (r *connectionRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Connection, error) {
	var conn domain.Connection
	if err := scanConnection(r.pool.QueryRow(ctx, query, args...), &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func scanConnection(row pgx.Row, conn *domain.Connection) error {
	return row.Scan(
		&conn.ID,
		&conn.TenantID,
		&conn.Name,
		&conn.Provider,
		&conn.Subtype,
		&conn.Status,
		&conn.IntegrationID,
		&conn.InstanceName,
		&conn.Qrcode,
		&conn.Retries,
		&conn.IsDefault,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
}
