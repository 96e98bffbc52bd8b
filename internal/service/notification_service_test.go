package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/config"
	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/notify"
)

type captureConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *captureConn) SetWriteDeadline(time.Time) error { return nil }
func (c *captureConn) Close() error                     { return nil }

func TestNotificationServiceBroadcastsEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	hub := notify.NewHub(config.NotificationConfig{WriteTimeout: time.Second}, zap.NewNop())
	NewNotificationService(dispatcher, hub, zap.NewNop()).RegisterHandlers()

	conn := &captureConn{}
	hub.Subscribe(conn)

	msg := "Retry 1/3: analysis provider timed out"
	ticket := &domain.Ticket{ID: "t-1", Status: domain.TicketStatusPending, ErrorMessage: &msg, ProcessingAttempts: 1}
	require.NoError(t, dispatcher.Publish(context.Background(), events.TicketUpdated(ticket)))

	require.Len(t, conn.frames, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(conn.frames[0], &got))
	assert.Equal(t, "ticket_update", got["type"])
	assert.Equal(t, "t-1", got["ticket_id"])
	assert.Equal(t, "pending", got["status"])
	assert.IsType(t, float64(0), got["timestamp"])
	data := got["data"].(map[string]any)
	assert.Equal(t, msg, data["error"])
}

func TestToMessageAlwaysHasData(t *testing.T) {
	m := ToMessage(events.Event{Type: events.EventTicketResolved, TicketID: "t-2", ResolvedBy: "grace", Timestamp: time.Unix(10, 500000000)})
	assert.NotNil(t, m.Data)
	assert.Equal(t, "grace", m.ResolvedBy)
	assert.InDelta(t, 10.5, m.Timestamp, 1e-9)
}
