package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// RedisQueue stores notifications as JSON in a Redis list (LPUSH producers, BRPOP consumer).
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

// NewRedisQueue creates a queue on key.
func NewRedisQueue(client *redis.Client, key string, pollTimeout time.Duration) *RedisQueue {
	if key == "" {
		key = "pqrs:notifications"
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, key: key, pollTimeout: pollTimeout}
}

// Enqueue pushes the notification onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Dequeue pops the oldest notification, waiting at most the poll timeout.
func (q *RedisQueue) Dequeue(ctx context.Context) (*domain.Notification, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dequeue notification: %w", err)
	}
	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("dequeue notification: unexpected reply of %d elements", len(res))
	}
	var n domain.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}
