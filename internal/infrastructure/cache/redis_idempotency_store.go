package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyPrefix = "settlement:idempotency:"

// RedisIdempotencyStore implements shared.IdempotencyStore on Redis so that
// every API instance sees the same claims. A claim is the key itself; the
// stored response lives under key + ":result".
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store over an existing client
func NewRedisIdempotencyStore(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisIdempotencyStore) claimKey(key string) string  { return s.keyPrefix + key }
func (s *RedisIdempotencyStore) resultKey(key string) string { return s.keyPrefix + key + ":result" }

// MarkProcessed claims key with SET NX so only one caller wins
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return ok, nil
}

// IsProcessed reports whether key is claimed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.claimKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

// SaveResult stores the response and extends the claim to ttl
func (s *RedisIdempotencyStore) SaveResult(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.resultKey(key), result, ttl)
		p.Set(ctx, s.claimKey(key), "1", ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save idempotent result: %w", err)
	}
	return nil
}

// GetResult returns the stored response for key
func (s *RedisIdempotencyStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.resultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotent result: %w", err)
	}
	return data, true, nil
}

// Forget removes the claim and any stored response
func (s *RedisIdempotencyStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.claimKey(key), s.resultKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close is a no-op; the client is owned by whoever created it
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

// Ensure RedisIdempotencyStore implements IdempotencyStore
var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
