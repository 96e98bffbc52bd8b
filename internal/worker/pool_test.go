package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-triage/internal/analysis"
	"github.com/spec-kit/complaint-triage/internal/domain"
	"github.com/spec-kit/complaint-triage/internal/queue"
)

func TestPoolProcessesQueuedTickets(t *testing.T) {
	analyzer := analyzerFunc(func(ctx context.Context, in analysis.Input) (domain.AnalysisResult, error) {
		return billingResult, nil
	})
	f := newFixture(t, analyzer)
	q := queue.NewMemoryQueue()

	var ids []string
	for i := 0; i < 6; i++ {
		ticket, _ := f.createTicket(t)
		require.NoError(t, q.Enqueue(context.Background(), ticket.ID))
		ids = append(ids, ticket.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(q, f.processor, testWorkerConfig(), zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, id := range ids {
		stored, err := f.repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusReady, stored.Status)
	}
}

type decisionHandler struct{ decision Decision }

func (h decisionHandler) Handle(context.Context, *queue.Task) Decision { return h.decision }

func TestPoolRequeuesWithNextAttempt(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	q := queue.NewMemoryQueue().WithClock(func() time.Time { return clock })
	require.NoError(t, q.Enqueue(context.Background(), "t-1"))

	pool := NewPool(q, decisionHandler{Retry(10*time.Second, true, "boom")}, testWorkerConfig(), zap.NewNop())
	task, err := q.Lease(context.Background(), time.Minute)
	require.NoError(t, err)
	pool.settle(context.Background(), zap.NewNop(), task, pool.handler.Handle(context.Background(), task))

	_, err = q.Lease(context.Background(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrEmpty)

	clock = clock.Add(10 * time.Second)
	again, err := q.Lease(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempt)

	pool.settle(context.Background(), zap.NewNop(), again, DeadLetter("done"))
	assert.Zero(t, q.Len())
}
