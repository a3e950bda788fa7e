package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocal()

	release, ok, err := locker.TryAcquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("held lock is not granted twice", func(t *testing.T) {
		_, ok, err := locker.TryAcquire(ctx, "job", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different names do not contend", func(t *testing.T) {
		other, ok, err := locker.TryAcquire(ctx, "other-job", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		other()
	})

	t.Run("release makes the lock available again", func(t *testing.T) {
		release()
		again, ok, err := locker.TryAcquire(ctx, "job", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		again()
	})
}
