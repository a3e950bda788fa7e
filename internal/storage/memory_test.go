package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "notto/internal/identity/models"
	"notto/pkg/platform/sentinel"
)

func TestMemoryIdentityConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	id := identity.NewIdentity("홍길동", time.Now())
	require.NoError(t, s.SaveIdentity(ctx, id))

	t.Run("same record upserts", func(t *testing.T) {
		id.Activate([]int{1, 2, 3, 4, 5, 6}, time.Now())
		require.NoError(t, s.SaveIdentity(ctx, id))
	})

	t.Run("different record with the same name conflicts", func(t *testing.T) {
		dupe := identity.NewIdentity("홍길동", time.Now())
		assert.ErrorIs(t, s.SaveIdentity(ctx, dupe), sentinel.ErrConflict)
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	id := identity.NewIdentity("홍길동", time.Now())
	id.FixedNumbers = []int{1, 2, 3, 4, 5, 6}
	require.NoError(t, s.SaveIdentity(ctx, id))

	got, err := s.FindIdentityByName(ctx, "홍길동")
	require.NoError(t, err)
	got.FixedNumbers[0] = 99

	again, err := s.FindIdentityByName(ctx, "홍길동")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, again.FixedNumbers)
}

func TestMemoryVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	base, err := s.Version(ctx)
	require.NoError(t, err)

	t.Run("identity writes move the version", func(t *testing.T) {
		require.NoError(t, s.SaveIdentity(ctx, identity.NewIdentity("a", time.Now())))
		moved, err := s.Version(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, base, moved)
	})

	t.Run("stale apply conflicts", func(t *testing.T) {
		err := s.ApplyChanges(ctx, base, []identity.Identity{identity.NewIdentity("b", time.Now())})
		assert.ErrorIs(t, err, sentinel.ErrVersionConflict)
	})

	t.Run("fresh apply succeeds", func(t *testing.T) {
		current, err := s.Version(ctx)
		require.NoError(t, err)
		require.NoError(t, s.ApplyChanges(ctx, current, []identity.Identity{identity.NewIdentity("b", time.Now())}))
		_, err = s.FindIdentityByName(ctx, "b")
		assert.NoError(t, err)
	})
}
