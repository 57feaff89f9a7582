package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list holding pending generation request ids.
const DefaultKey = "generation:jobs"

// ErrEmpty is returned by Dequeue when the blocking pop times out with no job.
var ErrEmpty = errors.New("queue: no job available")

// Queue is a Redis-list job queue carrying generation request ids. Delivery
// is at-least-once: a request id may be enqueued again by the stale sweep, so
// consumers must tolerate duplicates.
type Queue struct {
	client *redis.Client
	key    string
}

// New builds a queue over the given Redis client. An empty key selects
// DefaultKey.
func New(client *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: client, key: key}
}

// Enqueue pushes a request id onto the queue.
func (q *Queue) Enqueue(ctx context.Context, requestID string) error {
	return q.client.LPush(ctx, q.key, requestID).Err()
}

// Dequeue blocks up to timeout for the next request id. Returns ErrEmpty on
// timeout so pollers can loop without treating it as a failure.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		return "", err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return "", ErrEmpty
	}
	return res[1], nil
}
