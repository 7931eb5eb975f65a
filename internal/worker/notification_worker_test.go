package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/whatsdesk/internal/events"
)

type recordingBus struct {
	tenants []int64
	names   []string
}

func (b *recordingBus) Publish(_ context.Context, tenantID int64, eventName string, _ any) {
	b.tenants = append(b.tenants, tenantID)
	b.names = append(b.names, eventName)
}

func TestNotificationWorker_ForwardsEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	bus := &recordingBus{}
	StartNotificationWorker(dispatcher, bus)

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventMessageCreated,
		TenantID: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{3}, bus.tenants)
	assert.Equal(t, []string{"message_created"}, bus.names)
}
