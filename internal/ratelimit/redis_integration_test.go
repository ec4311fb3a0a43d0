//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestIntegration_RedisCounter(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	counter := NewRedisCounter(client, "test:")

	for i := int64(1); i <= 3; i++ {
		n, err := counter.Increment(ctx, "k", 200*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	ttl, err := client.PTTL(ctx, "test:k").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.Eventually(t, func() bool {
		n, err := counter.Increment(ctx, "k", 200*time.Millisecond)
		return err == nil && n == 1
	}, 2*time.Second, 50*time.Millisecond)
}
