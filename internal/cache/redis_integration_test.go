//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisClient_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := NewRedisClient(ctx, RedisConfig{Addr: host + ":" + port.Port(), Prefix: "test:"})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping(ctx))

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	key := QueryKey("route", "largest RIAs in St. Louis")
	require.NoError(t, SetJSON(ctx, c, key, map[string]string{"strategy": "hybrid"}, time.Minute))

	var got map[string]string
	require.NoError(t, GetJSON(ctx, c, key, &got))
	assert.Equal(t, "hybrid", got["strategy"])

	require.NoError(t, c.Set(ctx, "route:other", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "plan:keep", []byte("y"), time.Minute))
	require.NoError(t, c.DeleteByPrefix(ctx, "route:"))

	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "plan:keep")
	assert.NoError(t, err)

	require.NoError(t, c.Set(ctx, "short", []byte("z"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
