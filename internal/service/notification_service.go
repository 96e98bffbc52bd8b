package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/notify"
)

// NotificationService pushes dispatcher events to live subscribers.
type NotificationService struct {
	dispatcher events.Dispatcher
	hub        *notify.Hub
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, hub *notify.Hub, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.Types() {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(_ context.Context, event events.Event) error {
	delivered := n.hub.Broadcast(ToMessage(event))
	n.logger.Debug("event broadcast",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("status", string(event.Status)),
		zap.Int("delivered", delivered))
	return nil
}

// ToMessage renders an event in the subscriber wire format.
func ToMessage(event events.Event) notify.Message {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}
	return notify.Message{
		Type:       string(event.Type),
		TicketID:   event.TicketID,
		Status:     string(event.Status),
		ResolvedBy: event.ResolvedBy,
		Timestamp:  notify.UnixSeconds(event.Timestamp),
		Data:       data,
	}
}
