package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers client-supplied idempotency keys so a retried
// request replays the stored result instead of executing twice.
type IdempotencyStore interface {
	// MarkProcessed claims the key with a TTL.
	// Returns true if the key was newly claimed, false if it was already claimed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been claimed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// SaveResult stores the serialized result of the request that claimed key
	SaveResult(ctx context.Context, key string, result []byte, ttl time.Duration) error

	// GetResult returns the stored result, if any
	GetResult(ctx context.Context, key string) ([]byte, bool, error)

	// Forget removes the claim so that a failed request can be retried
	Forget(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// Locker serializes work on named entities. Acquire blocks until every key
// is held or ctx is done; the returned func releases them all.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}
