package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Coordination bundles the cross-request primitives of the settlement path:
// entity locks and idempotency keys. Both live in Redis when it is enabled
// and reachable, otherwise in process memory.
type Coordination struct {
	Locker      shared.Locker
	Idempotency shared.IdempotencyStore
	Distributed bool
	client      *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewCoordination builds the lockers and idempotency store from configuration.
// Outside production an unreachable Redis falls back to memory with a warning.
func NewCoordination(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Coordination, error) {
	if cfg.Redis.Enabled {
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err == nil {
			logger.Info("using Redis for settlement locks and idempotency", zap.String("addr", cfg.Redis.Addr()))
			return &Coordination{
				Locker: NewRedisLocker(client,
					WithLockTTL(cfg.Settlement.LockTTL),
					WithLockWait(cfg.Settlement.LockWait),
					WithLockLogger(logger),
				),
				Idempotency: NewRedisIdempotencyStore(client, ""),
				Distributed: true,
				client:      client,
			}, nil
		}
		if cfg.App.Env == "production" {
			return nil, fmt.Errorf("redis required in production: %w", err)
		}
		logger.Warn("Redis unavailable, falling back to in-memory locks. "+
			"Settlements are only serialized within this process.",
			zap.Error(err),
		)
	}

	return NewInMemoryCoordination(cfg.Settlement.LockWait), nil
}

// NewInMemoryCoordination builds process-local locks and idempotency keys
func NewInMemoryCoordination(lockWait time.Duration) *Coordination {
	return &Coordination{
		Locker:      NewInMemoryLocker(lockWait),
		Idempotency: NewInMemoryIdempotencyStore(),
	}
}

// Close releases the idempotency store and the Redis client
func (c *Coordination) Close() error {
	err := c.Idempotency.Close()
	if c.client != nil {
		if cerr := c.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
