package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/config"
)

// ErrClosed is returned when writing to a subscriber that was removed.
var ErrClosed = errors.New("subscriber closed")

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one live connection registered with the hub. Writes to a
// subscriber are serialized.
type Subscriber struct {
	id     string
	conn   Conn
	mu     sync.Mutex
	closed bool
}

// ID identifies the subscriber in logs.
func (s *Subscriber) ID() string { return s.id }

func (s *Subscriber) write(messageType int, data []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

// Hub keeps the set of live subscribers and fans messages out to them.
// There is no backlog: a subscriber only sees messages broadcast while it is
// registered.
type Hub struct {
	mu           sync.RWMutex
	subscribers  map[string]*Subscriber
	writeTimeout time.Duration
	heartbeat    time.Duration
	logger       *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(cfg config.NotificationConfig, logger *zap.Logger) *Hub {
	return &Hub{
		subscribers:  make(map[string]*Subscriber),
		writeTimeout: cfg.WriteTimeout,
		heartbeat:    cfg.HeartbeatInterval,
		logger:       logger,
	}
}

// Subscribe registers conn and returns its handle.
func (h *Hub) Subscribe(conn Conn) *Subscriber {
	sub := &Subscriber{id: uuid.NewString(), conn: conn}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info("subscriber connected", zap.String("subscriber_id", sub.id), zap.Int("subscribers", total))
	return sub
}

// Unsubscribe removes sub and closes its connection. Removing a subscriber
// twice is harmless.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.id]
	delete(h.subscribers, sub.id)
	total := len(h.subscribers)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.logger.Info("subscriber disconnected", zap.String("subscriber_id", sub.id), zap.Int("subscribers", total))
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast delivers msg to every subscriber registered when the call starts
// and drops the ones whose write fails. It returns the number of successful
// deliveries.
func (h *Hub) Broadcast(msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode broadcast", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		if err := sub.write(websocket.TextMessage, payload, h.writeTimeout); err != nil {
			h.logger.Warn("dropping subscriber after failed send",
				zap.String("subscriber_id", sub.id), zap.Error(err))
			h.Unsubscribe(sub)
			continue
		}
		delivered++
	}
	return delivered
}

// Send writes v as JSON to one subscriber.
func (h *Hub) Send(sub *Subscriber, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sub.write(websocket.TextMessage, payload, h.writeTimeout)
}

// SendText writes a raw text frame to one subscriber.
func (h *Hub) SendText(sub *Subscriber, text string) error {
	return sub.write(websocket.TextMessage, []byte(text), h.writeTimeout)
}

// Heartbeat pings sub every heartbeat interval until ctx is done or a ping
// fails, in which case sub is unsubscribed.
func (h *Hub) Heartbeat(ctx context.Context, sub *Subscriber) {
	if h.heartbeat <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sub.write(websocket.PingMessage, nil, h.writeTimeout); err != nil {
				if !errors.Is(err, ErrClosed) {
					h.logger.Debug("heartbeat failed", zap.String("subscriber_id", sub.id), zap.Error(err))
				}
				h.Unsubscribe(sub)
				return
			}
		}
	}
}

// Close unsubscribes every subscriber. Used on shutdown so blocked readers
// return.
func (h *Hub) Close() {
	h.mu.Lock()
	snapshot := make([]*Subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		sub.close()
	}
	if len(snapshot) > 0 {
		h.logger.Info("closed subscribers", zap.Int("count", len(snapshot)))
	}
}
