package cache

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/infrastructure/config"
)

// testRedisConfig returns the Redis used by integration tests, skipping when
// LOGIRIDE_TEST_REDIS is not set (host:port).
func testRedisConfig(t *testing.T) config.RedisConfig {
	t.Helper()
	addr := os.Getenv("LOGIRIDE_TEST_REDIS")
	if addr == "" {
		t.Skip("LOGIRIDE_TEST_REDIS not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err, "LOGIRIDE_TEST_REDIS must be host:port")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: port}
}

func TestRedisIdempotencyStore(t *testing.T) {
	cfg := testRedisConfig(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	store := NewRedisIdempotencyStore(client, "test:"+uuid.NewString()+":")
	key := uuid.NewString()

	isNew, err := store.MarkProcessed(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.MarkProcessed(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, isNew)

	processed, err := store.IsProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, processed)

	assert.NoError(t, store.Close())
	assert.NoError(t, client.Ping(ctx).Err(), "borrowed client stays open")
}

func TestFactory_MemoryBackend(t *testing.T) {
	f := NewIdempotencyStoreFactory(config.ChatConfig{DedupBackend: config.DedupBackendMemory}, config.RedisConfig{})
	store, err := f.CreateStore(context.Background(), "acc-1")
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
}

func TestFactory_RedisUnavailable(t *testing.T) {
	chat := config.ChatConfig{DedupBackend: config.DedupBackendRedis}
	unreachable := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	t.Run("falls back to memory", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(chat, unreachable, WithLogger(zap.NewNop()))
		store, err := f.CreateStore(context.Background(), "acc-1")
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(chat, unreachable, WithInMemoryFallback(false))
		_, err := f.CreateStore(context.Background(), "acc-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unavailable")
	})
}
