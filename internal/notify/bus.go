package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus fans domain events out to UI consumers. Fire-and-forget,
// at-least-once; consumers tolerate repeats and reordering.
type Bus interface {
	Publish(ctx context.Context, tenantID int64, eventName string, payload any)
}

// redisBus publishes JSON envelopes to per-tenant Redis channels, the
// cross-process equivalent of the Socket.IO room fan-out.
type redisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus constructs the bus.
func NewRedisBus(client *redis.Client, logger *zap.Logger) Bus {
	return &redisBus{client: client, logger: logger}
}

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (b *redisBus) Publish(ctx context.Context, tenantID int64, eventName string, payload any) {
	if b.client == nil {
		return
	}
	body, err := json.Marshal(envelope{Event: eventName, Payload: payload})
	if err != nil {
		b.logger.Warn("bus marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	channel := TenantChannel(tenantID)
	if err := b.client.Publish(ctx, channel, body).Err(); err != nil {
		// Bus contract is best-effort; a failed publish is logged, never raised.
		b.logger.Warn("bus publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// TenantChannel names the fan-out channel for a tenant.
func TenantChannel(tenantID int64) string {
	return fmt.Sprintf("company-%d-mainchannel", tenantID)
}

// NopBus discards everything; used in tests and when Redis is absent.
type NopBus struct{}

func (NopBus) Publish(context.Context, int64, string, any) {}
