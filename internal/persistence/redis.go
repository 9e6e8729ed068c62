package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/config"
)

const redisDialCheck = 3 * time.Second

// Redis backs the notification queue and the deadline alert markers. A nil Client means
// both fall back to process memory.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects when enabled. An unreachable server is logged and treated as disabled.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if !cfg.Enabled {
		logger.Warn("redis disabled; using in-memory queue and alert markers")
		return &Redis{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialCheck)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis; using in-memory queue and alert markers",
			zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return &Redis{}
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}

// Enabled reports whether a reachable client is held.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Ping is used by the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis not configured")
	}
	return r.Client.Ping(ctx).Err()
}
