package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmpty is returned by Lease when no task is visible.
	ErrEmpty = errors.New("queue empty")
	// ErrLeaseLost is returned by Ack and Requeue when the task was leased again
	// by another consumer after this lease expired.
	ErrLeaseLost = errors.New("task lease lost")
)

// Payload is the serialized form of a task.
type Payload struct {
	TicketID string `json:"ticket_id"`
	Attempt  int    `json:"attempt"`
}

// Task is one leased delivery. Receipt identifies the lease; it changes every
// time the task is leased.
type Task struct {
	TicketID    string
	Attempt     int
	Receipt     string
	LeaseExpiry time.Time
}

func (t *Task) payload() Payload {
	return Payload{TicketID: t.TicketID, Attempt: t.Attempt}
}

// Queue is an at-least-once task queue keyed by ticket id. A ticket has at
// most one task in the queue; enqueueing an id that is already queued or
// leased is a no-op.
type Queue interface {
	Enqueue(ctx context.Context, ticketID string) error
	// Lease returns the next visible task and hides it for visibility. A task
	// neither acked nor requeued before then becomes visible again.
	Lease(ctx context.Context, visibility time.Duration) (*Task, error)
	Ack(ctx context.Context, task *Task) error
	// Requeue stores task.Attempt as given and makes the task visible after delay.
	Requeue(ctx context.Context, task *Task, delay time.Duration) error
	Close() error
}
