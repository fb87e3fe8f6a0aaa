//go:build integration

package deduplication

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"meshbridge/internal/config"
	"meshbridge/internal/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() {
		_ = client.Close()
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err())

	return client
}

func TestRedisRepositorySetNX(t *testing.T) {
	client := setupRedis(t)
	repo := NewRedisRepository(client)
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "dedup:k1", time.Now().Unix(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetNX(ctx, "dedup:k1", time.Now().Unix(), 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := repo.GetCacheSize(ctx, "dedup:")
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestRedisRepositoryTTL(t *testing.T) {
	client := setupRedis(t)
	repo := NewRedisRepository(client)
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "dedup:k2", 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(2 * time.Second)

	ok, err = repo.SetNX(ctx, "dedup:k2", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestServiceWithRedis(t *testing.T) {
	client := setupRedis(t)
	s := NewService(NewRedisRepository(client), config.DeduplicationConfig{TTLSeconds: 60}, logger.NopLogger())
	defer s.Close()

	ctx := context.Background()
	unique, err := s.IsUnique(ctx, 0xa1b2c3d4, 1234)
	require.NoError(t, err)
	assert.True(t, unique)

	unique, err = s.IsUnique(ctx, 0xa1b2c3d4, 1234)
	require.NoError(t, err)
	assert.False(t, unique)
}
