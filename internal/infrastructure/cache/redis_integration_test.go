//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, WithLockWait(100*time.Millisecond), WithLockTTL(time.Minute))

	release, err := locker.Acquire(ctx, "funding:1", "counterparty:2")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "funding:1")
	assert.ErrorIs(t, err, shared.ErrLockTimeout)

	release()
	n, err := client.Exists(ctx, defaultLockPrefix+"funding:1", defaultLockPrefix+"counterparty:2").Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	t.Run("does not release a lock it no longer owns", func(t *testing.T) {
		short := NewRedisLocker(client, WithLockTTL(50*time.Millisecond))
		release, err := short.Acquire(ctx, "funding:9")
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)

		other, err := locker.Acquire(ctx, "funding:9")
		require.NoError(t, err)
		release()

		held, err := client.Exists(ctx, defaultLockPrefix+"funding:9").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), held)
		other()
	})
}

func TestRedisIdempotencyStore(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	store := NewRedisIdempotencyStore(client, "")

	claimed, err := store.MarkProcessed(ctx, "settle-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.MarkProcessed(ctx, "settle-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, store.SaveResult(ctx, "settle-1", []byte(`{"ok":true}`), time.Minute))
	got, ok, err := store.GetResult(ctx, "settle-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(got))

	require.NoError(t, store.Forget(ctx, "settle-1"))
	processed, err := store.IsProcessed(ctx, "settle-1")
	require.NoError(t, err)
	assert.False(t, processed)
}
