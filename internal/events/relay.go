package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay carries events between a standalone worker process and the API
// process over a Redis pub/sub channel.
type Relay struct {
	rdb     redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewRelay builds a relay on channel.
func NewRelay(rdb redis.UniversalClient, channel string, logger *zap.Logger) *Relay {
	return &Relay{rdb: rdb, channel: channel, logger: logger}
}

// Forward publishes event to the channel. It has the EventHandler shape so
// it can be subscribed on a dispatcher.
func (r *Relay) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// ForwardAll subscribes Forward on dispatcher for every event type.
func (r *Relay) ForwardAll(dispatcher Dispatcher) {
	for _, eventType := range Types() {
		dispatcher.Subscribe(eventType, r.Forward)
	}
}

// Listen republishes events received on the channel to dispatcher until ctx
// is cancelled.
func (r *Relay) Listen(ctx context.Context, dispatcher Dispatcher) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.logger.Info("event relay listening", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("dropping malformed relayed event", zap.Error(err))
				continue
			}
			_ = dispatcher.Publish(ctx, event)
		}
	}
}
