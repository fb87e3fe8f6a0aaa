package deduplication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/config"
	"meshbridge/internal/logger"
)

type failingRepository struct {
	err   error
	calls int
}

func (r *failingRepository) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	r.calls++
	return false, r.err
}

func (r *failingRepository) GetCacheSize(context.Context, string) (int, error) {
	return 0, r.err
}

func newService(t *testing.T, repo Repository, cfg config.DeduplicationConfig) *Service {
	t.Helper()
	s := NewService(repo, cfg, logger.NopLogger())
	t.Cleanup(s.Close)
	return s
}

func TestIsUnique(t *testing.T) {
	s := newService(t, NewMemoryRepository(), config.DeduplicationConfig{TTLSeconds: 600})
	ctx := context.Background()

	unique, err := s.IsUnique(ctx, 123, 77)
	require.NoError(t, err)
	assert.True(t, unique)

	unique, err = s.IsUnique(ctx, 123, 77)
	require.NoError(t, err)
	assert.False(t, unique, "rebroadcast of the same packet")

	unique, err = s.IsUnique(ctx, 124, 77)
	require.NoError(t, err)
	assert.True(t, unique, "same id from another sender")
}

func TestIsUniqueSkipsPacketsWithoutID(t *testing.T) {
	repo := &failingRepository{err: errors.New("must not be called")}
	s := newService(t, repo, config.DeduplicationConfig{})

	for i := 0; i < 3; i++ {
		unique, err := s.IsUnique(context.Background(), 123, 0)
		require.NoError(t, err)
		assert.True(t, unique)
	}
	assert.Zero(t, repo.calls)
}

func TestIsUniqueRepositoryErrors(t *testing.T) {
	down := errors.New("dial tcp 127.0.0.1:6379: connection refused")

	tests := []struct {
		name       string
		onError    string
		wantUnique bool
		wantErr    bool
	}{
		{name: "default allows", onError: "", wantUnique: true},
		{name: "allow", onError: "allow", wantUnique: true},
		{name: "deny", onError: "deny", wantUnique: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, &failingRepository{err: down}, config.DeduplicationConfig{OnError: tt.onError})

			unique, err := s.IsUnique(context.Background(), 123, 9)
			assert.Equal(t, tt.wantUnique, unique)
			if tt.wantErr {
				assert.ErrorIs(t, err, down)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryRepositoryExpiry(t *testing.T) {
	repo := NewMemoryRepository()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "dedup:a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetNX(ctx, "dedup:a", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := repo.GetCacheSize(ctx, "dedup:")
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	now = now.Add(time.Minute)

	size, err = repo.GetCacheSize(ctx, "dedup:")
	require.NoError(t, err)
	assert.Zero(t, size)

	ok, err = repo.SetNX(ctx, "dedup:a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCircuitBreakerRepositoryOpens(t *testing.T) {
	down := errors.New("redis down")
	inner := &failingRepository{err: down}
	repo := NewCircuitBreakerRepository(inner, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := repo.SetNX(context.Background(), "dedup:x", 1, time.Minute)
		assert.ErrorIs(t, err, down)
	}

	_, err := repo.SetNX(context.Background(), "dedup:x", 1, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "open", repo.State())
}

func TestCircuitBreakerRepositoryDisabled(t *testing.T) {
	repo := NewCircuitBreakerRepository(NewMemoryRepository(), config.CircuitBreakerConfig{})
	assert.Equal(t, "disabled", repo.State())

	ok, err := repo.SetNX(context.Background(), "dedup:y", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPacketHashIsStable(t *testing.T) {
	assert.Equal(t, PacketHash(123, 77), PacketHash(123, 77))
	assert.NotEqual(t, PacketHash(123, 77), PacketHash(12, 377))
	assert.Len(t, PacketHash(1, 1), 64)
}
