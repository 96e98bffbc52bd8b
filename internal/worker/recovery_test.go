package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/events"
	"github.com/spec-kit/complaint-triage/internal/observability"
	"github.com/spec-kit/complaint-triage/internal/queue"
	"github.com/spec-kit/complaint-triage/internal/repository"
)

func TestSweepRecoversStaleProcessing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryTicketRepository().WithClock(func() time.Time { return now })
	q := queue.NewMemoryQueue()
	cfg := testWorkerConfig()

	claim := func(attempts int) string {
		ticket, err := repo.Create(ctx, domain.NewTicket{Title: "Stuck", Description: "Worker crashed mid-call.", CustomerEmail: "a@example.com"})
		require.NoError(t, err)
		for i := 0; i < attempts; i++ {
			_, err = repo.Transition(ctx, ticket.ID, domain.TicketStatusPending, domain.TicketStatusProcessing, domain.TransitionUpdate{IncrementAttempts: true})
			require.NoError(t, err)
			if i < attempts-1 {
				_, err = repo.Transition(ctx, ticket.ID, domain.TicketStatusProcessing, domain.TicketStatusPending, domain.TransitionUpdate{})
				require.NoError(t, err)
			}
		}
		return ticket.ID
	}
	retryable := claim(1)
	exhausted := claim(3)

	recovery := NewRecovery(repo, q, events.NewInMemoryDispatcher(zap.NewNop()), observability.NewMetrics(), cfg, zap.NewNop())

	recovery.now = func() time.Time { return now.Add(30 * time.Second) }
	moved, err := recovery.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)

	recovery.now = func() time.Time { return now.Add(2 * time.Minute) }
	moved, err = recovery.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	stored, err := repo.Get(ctx, retryable)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, stored.Status)
	assert.Equal(t, 1, q.Len())

	stored, err = repo.Get(ctx, exhausted)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusFailed, stored.Status)
	assert.Equal(t, "Failed after 3 attempts: processing was interrupted", *stored.ErrorMessage)
}

func TestSweepRequeuesOrphanedPending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryTicketRepository().WithClock(func() time.Time { return now })
	q := queue.NewMemoryQueue()

	ticket, err := repo.Create(ctx, domain.NewTicket{Title: "Lost", Description: "Enqueue failed after intake.", CustomerEmail: "a@example.com"})
	require.NoError(t, err)

	recovery := NewRecovery(repo, q, nil, nil, testWorkerConfig(), zap.NewNop())
	recovery.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, err = recovery.Sweep(ctx)
	require.NoError(t, err)
	_, err = recovery.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	task, err := q.Lease(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, task.TicketID)
}
