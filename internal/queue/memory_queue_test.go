package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueLeaseSemantics(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	q := NewMemoryQueue().WithClock(clock.now)

	require.NoError(t, q.Enqueue(ctx, "t-1"))
	require.NoError(t, q.Enqueue(ctx, "t-1"))
	assert.Equal(t, 1, q.Len())

	first, err := q.Lease(ctx, 30*time.Second)
	require.NoError(t, err)
	_, err = q.Lease(ctx, 30*time.Second)
	assert.ErrorIs(t, err, ErrEmpty)

	clock.advance(30 * time.Second)
	second, err := q.Lease(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Ack(ctx, first), ErrLeaseLost)

	second.Attempt++
	require.NoError(t, q.Requeue(ctx, second, 10*time.Second))
	clock.advance(10 * time.Second)
	third, err := q.Lease(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Attempt)

	require.NoError(t, q.Ack(ctx, third))
	assert.Zero(t, q.Len())
}

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, id))
	}
	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Lease(ctx, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, task.TicketID)
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(context.Background(), "a"))
	require.NoError(t, q.Close())
	_, err := q.Lease(context.Background(), time.Minute)
	assert.ErrorIs(t, err, ErrEmpty)
}
