package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Tasks live in a sorted set scored by the unix millisecond at which they
// become visible; a lease pushes the score forward by the visibility timeout.
// Each task has a hash holding its payload and the current lease receipt.
var (
	enqueueScript = redis.NewScript(`
if redis.call('ZADD', KEYS[1], 'NX', ARGV[2], ARGV[1]) == 1 then
  redis.call('HSET', KEYS[2], 'payload', ARGV[3])
  redis.call('HDEL', KEYS[2], 'receipt')
  return 1
end
return 0
`)

	leaseScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZADD', KEYS[1], ARGV[2], id)
local key = ARGV[4] .. id
redis.call('HSET', key, 'receipt', ARGV[3])
local payload = redis.call('HGET', key, 'payload')
return {id, payload or ''}
`)

	ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

	requeueScript = redis.NewScript(`
if redis.call('HGET', KEYS[2], 'receipt') ~= ARGV[2] then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
redis.call('HSET', KEYS[2], 'payload', ARGV[4])
redis.call('HDEL', KEYS[2], 'receipt')
return 1
`)
)

// RedisQueue implements Queue on Redis.
type RedisQueue struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option customizes a RedisQueue.
type Option func(*RedisQueue)

// WithClock overrides the time source used for visibility scores.
func WithClock(now func() time.Time) Option {
	return func(q *RedisQueue) { q.now = now }
}

// NewRedisQueue builds a queue whose keys start with prefix.
func NewRedisQueue(rdb redis.UniversalClient, prefix string, opts ...Option) *RedisQueue {
	q := &RedisQueue{rdb: rdb, prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) tasksKey() string { return q.prefix + ":tasks" }
func (q *RedisQueue) taskPrefix() string {
	return q.prefix + ":task:"
}
func (q *RedisQueue) taskKey(id string) string { return q.taskPrefix() + id }

func (q *RedisQueue) Enqueue(ctx context.Context, ticketID string) error {
	payload, err := json.Marshal(Payload{TicketID: ticketID, Attempt: 1})
	if err != nil {
		return err
	}
	keys := []string{q.tasksKey(), q.taskKey(ticketID)}
	if err := enqueueScript.Run(ctx, q.rdb, keys, ticketID, q.now().UnixMilli(), payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", ticketID, err)
	}
	return nil
}

func (q *RedisQueue) Lease(ctx context.Context, visibility time.Duration) (*Task, error) {
	now := q.now()
	expiry := now.Add(visibility)
	receipt := uuid.NewString()

	res, err := leaseScript.Run(ctx, q.rdb, []string{q.tasksKey()},
		now.UnixMilli(), expiry.UnixMilli(), receipt, q.taskPrefix()).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("lease: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("lease: unexpected reply %v", res)
	}

	id, _ := res[0].(string)
	raw, _ := res[1].(string)
	// The member is the ticket id, so a missing or unreadable payload only
	// loses the delivery count; the task still has to reach a handler so it
	// can be settled.
	attempt := 1
	var payload Payload
	if raw != "" && json.Unmarshal([]byte(raw), &payload) == nil && payload.Attempt > 0 {
		attempt = payload.Attempt
	}

	return &Task{
		TicketID:    id,
		Attempt:     attempt,
		Receipt:     receipt,
		LeaseExpiry: expiry,
	}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, task *Task) error {
	keys := []string{q.tasksKey(), q.taskKey(task.TicketID)}
	ok, err := ackScript.Run(ctx, q.rdb, keys, task.TicketID, task.Receipt).Int()
	if err != nil {
		return fmt.Errorf("ack %s: %w", task.TicketID, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, task *Task, delay time.Duration) error {
	payload, err := json.Marshal(task.payload())
	if err != nil {
		return err
	}
	keys := []string{q.tasksKey(), q.taskKey(task.TicketID)}
	visibleAt := q.now().Add(delay).UnixMilli()
	ok, err := requeueScript.Run(ctx, q.rdb, keys, task.TicketID, task.Receipt, visibleAt, payload).Int()
	if err != nil {
		return fmt.Errorf("requeue %s: %w", task.TicketID, err)
	}
	if ok == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Len reports the number of queued and leased tasks.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.tasksKey()).Result()
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

var _ Queue = (*RedisQueue)(nil)
