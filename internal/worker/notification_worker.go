package worker

import (
	"context"

	"github.com/spec-kit/complaint-triage/internal/events"
)

// StartNotificationRelay feeds events published by a standalone worker
// process into this process's dispatcher. It blocks until ctx is done.
func StartNotificationRelay(ctx context.Context, relay *events.Relay, dispatcher events.Dispatcher) error {
	if relay == nil {
		<-ctx.Done()
		return nil
	}
	return relay.Listen(ctx, dispatcher)
}
