package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	payload   Payload
	visibleAt time.Time
	receipt   string
	seq       uint64
}

// MemoryQueue is a process-local Queue with the same lease semantics as the
// Redis queue. Tasks do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	seq     uint64
	now     func() time.Time
	closed  bool
}

// NewMemoryQueue instantiates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]*memoryEntry), now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, ticketID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[ticketID]; ok {
		return nil
	}
	q.seq++
	q.entries[ticketID] = &memoryEntry{
		payload:   Payload{TicketID: ticketID, Attempt: 1},
		visibleAt: q.now(),
		seq:       q.seq,
	}
	return nil
}

func (q *MemoryQueue) Lease(_ context.Context, visibility time.Duration) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrEmpty
	}

	now := q.now()
	var next *memoryEntry
	for _, e := range q.entries {
		if e.visibleAt.After(now) {
			continue
		}
		if next == nil || e.visibleAt.Before(next.visibleAt) ||
			(e.visibleAt.Equal(next.visibleAt) && e.seq < next.seq) {
			next = e
		}
	}
	if next == nil {
		return nil, ErrEmpty
	}

	next.receipt = uuid.NewString()
	next.visibleAt = now.Add(visibility)
	return &Task{
		TicketID:    next.payload.TicketID,
		Attempt:     next.payload.Attempt,
		Receipt:     next.receipt,
		LeaseExpiry: next.visibleAt,
	}, nil
}

func (q *MemoryQueue) Ack(_ context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[task.TicketID]
	if !ok || e.receipt != task.Receipt {
		return ErrLeaseLost
	}
	delete(q.entries, task.TicketID)
	return nil
}

func (q *MemoryQueue) Requeue(_ context.Context, task *Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[task.TicketID]
	if !ok || e.receipt != task.Receipt {
		return ErrLeaseLost
	}
	e.payload = task.payload()
	e.receipt = ""
	e.visibleAt = q.now().Add(delay)
	q.seq++
	e.seq = q.seq
	return nil
}

// Len reports the number of queued and leased tasks.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close makes further leases report an empty queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
