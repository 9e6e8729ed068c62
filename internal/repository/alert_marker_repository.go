package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertMarkerRepository remembers which cases were alerted recently.
type AlertMarkerRepository interface {
	// MarkIfAbsent records an alert for caseID and reports true when no marker existed
	// within ttl.
	MarkIfAbsent(ctx context.Context, caseID string, ttl time.Duration) (bool, error)
	// Clear drops the marker so the next scan may alert again.
	Clear(ctx context.Context, caseID string) error
}

type redisAlertMarkerRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisAlertMarkerRepository stores markers as expiring Redis keys.
func NewRedisAlertMarkerRepository(client *redis.Client, prefix string) AlertMarkerRepository {
	if prefix == "" {
		prefix = "pqrs:alerted:"
	}
	return &redisAlertMarkerRepository{client: client, prefix: prefix}
}

func (r *redisAlertMarkerRepository) MarkIfAbsent(ctx context.Context, caseID string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+caseID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (r *redisAlertMarkerRepository) Clear(ctx context.Context, caseID string) error {
	return r.client.Del(ctx, r.prefix+caseID).Err()
}
