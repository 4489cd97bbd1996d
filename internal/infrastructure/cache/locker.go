package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLockPrefix = "settlement:lock:"

// releaseScript deletes a lock only while it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// normalizeKeys sorts and dedupes keys. Every locker acquires in this order,
// so two callers locking overlapping sets cannot deadlock.
func normalizeKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// lockTimeout turns a wait that ran out into shared.ErrLockTimeout while
// keeping caller cancellation visible
func lockTimeout(parent context.Context, key string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("lock %s: %w", key, shared.ErrLockTimeout)
}

// RedisLocker implements shared.Locker with SET NX PX locks on Redis
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// RedisLockerOption configures a RedisLocker
type RedisLockerOption func(*RedisLocker)

// WithLockTTL sets how long a lock survives a crashed holder
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// WithLockWait sets how long Acquire waits for a busy key
func WithLockWait(wait time.Duration) RedisLockerOption {
	return func(l *RedisLocker) { l.wait = wait }
}

// WithLockLogger sets the logger
func WithLockLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisLocker) { l.logger = logger }
}

// NewRedisLocker creates a locker over client
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: defaultLockPrefix,
		ttl:    30 * time.Second,
		wait:   5 * time.Second,
		retry:  25 * time.Millisecond,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire locks every key or none
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held := make([]string, 0, len(keys))
	releaseHeld := func() {
		// release must succeed even when the request context is gone
		relCtx, relCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer relCancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(relCtx, l.client, []string{held[i]}, token).Err(); err != nil {
				l.logger.Warn("failed to release lock", zap.String("key", held[i]), zap.Error(err))
			}
		}
	}

	for _, key := range keys {
		redisKey := l.prefix + key
		if err := l.acquireOne(waitCtx, ctx, redisKey, token); err != nil {
			releaseHeld()
			return nil, err
		}
		held = append(held, redisKey)
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *RedisLocker) acquireOne(waitCtx, parent context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return lockTimeout(parent, key)
			}
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return lockTimeout(parent, key)
		case <-time.After(l.retry):
		}
	}
}

// InMemoryLocker implements shared.Locker within one process
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewInMemoryLocker creates a locker whose Acquire waits at most wait per call
func NewInMemoryLocker(wait time.Duration) *InMemoryLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &InMemoryLocker{locks: make(map[string]*keyLock), wait: wait}
}

// Acquire locks every key or none
func (l *InMemoryLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held := make([]string, 0, len(keys))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range keys {
		kl := l.ref(key)
		select {
		case kl.sem <- struct{}{}:
			held = append(held, key)
		case <-waitCtx.Done():
			l.unref(key)
			releaseHeld()
			return nil, lockTimeout(ctx, key)
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *InMemoryLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *InMemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *InMemoryLocker) unlock(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	l.mu.Unlock()
	<-kl.sem
	l.unref(key)
}

// Held returns the number of keys currently tracked (for tests)
func (l *InMemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Ensure both lockers implement the interface
var (
	_ shared.Locker = (*RedisLocker)(nil)
	_ shared.Locker = (*InMemoryLocker)(nil)
)
