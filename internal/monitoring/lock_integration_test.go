//go:build integration

package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
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
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLocker(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	locker := NewRedisLockerFromClient(client)
	require.NoError(t, locker.Ping(ctx))

	first, err := locker.Acquire(ctx, "test:cycle", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "test:cycle", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, first.Release(ctx))

	second, err := locker.Acquire(ctx, "test:cycle", time.Minute)
	require.NoError(t, err)
	defer second.Release(ctx)

	// Releasing a stale lock must not free the current holder.
	require.NoError(t, first.Release(ctx))
	_, err = locker.Acquire(ctx, "test:cycle", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestRedisLocker_Expires(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	locker := NewRedisLockerFromClient(client)

	_, err := locker.Acquire(ctx, "test:expiry", 200*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		l, err := locker.Acquire(ctx, "test:expiry", time.Minute)
		return err == nil && l != nil
	}, 3*time.Second, 50*time.Millisecond)
}
