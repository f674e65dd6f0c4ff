package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCenterLocker_ReleasesAfterRun(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisCenterLocker(client, 5*time.Second)

	ran := false
	err := locker.WithCenterLock(context.Background(), 7, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:generate:center:7"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:generate:center:7"))
}

func TestRedisCenterLocker_HeldLockFailsFast(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("lock:generate:center:3", "someone-else"))

	locker := NewRedisCenterLocker(client, 5*time.Second)
	err := locker.WithCenterLock(context.Background(), 3, func(ctx context.Context) error {
		t.Fatal("fn must not run while the lock is held")
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// the foreign token is left alone
	val, err := mr.Get("lock:generate:center:3")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestRedisCenterLocker_DifferentCentersIndependent(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisCenterLocker(client, 5*time.Second)

	err := locker.WithCenterLock(context.Background(), 1, func(ctx context.Context) error {
		return locker.WithCenterLock(ctx, 2, func(context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestLocalLocker_ReentryRejected(t *testing.T) {
	locker := NewLocalLocker()

	err := locker.WithCenterLock(context.Background(), 1, func(ctx context.Context) error {
		inner := locker.WithCenterLock(ctx, 1, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// released afterwards
	assert.NoError(t, locker.WithCenterLock(context.Background(), 1, func(context.Context) error { return nil }))
}

func TestRedisCenterLocker_RunOutlivesTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	ttl := 150 * time.Millisecond
	locker := NewRedisCenterLocker(client, ttl)
	key := "lock:generate:center:11"

	err := locker.WithCenterLock(context.Background(), 11, func(ctx context.Context) error {
		mr.FastForward(100 * time.Millisecond)
		time.Sleep(3 * ttl)

		require.NoError(t, ctx.Err())
		assert.True(t, mr.Exists(key))
		assert.Greater(t, mr.TTL(key), 100*time.Millisecond)
		return nil
	})

	require.NoError(t, err)
	assert.False(t, mr.Exists(key))
}

func TestRedisCenterLocker_LostLockCancelsRun(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisCenterLocker(client, 90*time.Millisecond)
	key := "lock:generate:center:12"

	err := locker.WithCenterLock(context.Background(), 12, func(ctx context.Context) error {
		require.NoError(t, mr.Set(key, "someone-else"))
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(2 * time.Second):
			return nil
		}
	})

	assert.ErrorIs(t, err, ErrLockLost)
	got, getErr := mr.Get(key)
	require.NoError(t, getErr)
	assert.Equal(t, "someone-else", got)
}
