package worker

import (
	"context"

	"github.com/spec-kit/whatsdesk/internal/events"
	"github.com/spec-kit/whatsdesk/internal/notify"
)

// StartNotificationWorker bridges in-process domain events onto the tenant
// notification channels so connected frontends see session, ticket and
// message updates live.
func StartNotificationWorker(dispatcher events.Dispatcher, bus notify.Bus) {
	if dispatcher == nil || bus == nil {
		return
	}

	forward := func(ctx context.Context, event events.Event) error {
		bus.Publish(ctx, event.TenantID, string(event.Type), event.Payload)
		return nil
	}

	dispatcher.Subscribe(events.EventSessionUpdated, forward)
	dispatcher.Subscribe(events.EventMessageCreated, forward)
	dispatcher.Subscribe(events.EventTicketUpdated, forward)
	dispatcher.Subscribe(events.EventContactUpdated, forward)
}
