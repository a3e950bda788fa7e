//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notto/pkg/testutil/containers"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := containers.RedisClient(t)
	locker := NewRedis(client)

	release, ok, err := locker.TryAcquire(ctx, "draw", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("second holder is refused", func(t *testing.T) {
		_, ok, err := locker.TryAcquire(ctx, "draw", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release frees the lock", func(t *testing.T) {
		release()
		again, ok, err := locker.TryAcquire(ctx, "draw", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		again()
	})

	t.Run("expired lock can be taken over and the stale release is a no-op", func(t *testing.T) {
		short, ok, err := locker.TryAcquire(ctx, "ttl-job", 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(200 * time.Millisecond)

		takeover, ok, err := locker.TryAcquire(ctx, "ttl-job", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		// The first holder's release must not free the new holder's lock.
		short()
		_, ok, err = locker.TryAcquire(ctx, "ttl-job", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		takeover()
	})
}
