package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, time.Minute), mr
}

func TestLockerAcquireRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := SettlementLockKey("closing", 1)

	require.NoError(t, locker.Acquire(ctx, key))

	err := locker.Acquire(ctx, key)
	require.Error(t, err)
	require.Equal(t, KindConflict, KindOf(err))

	locker.Release(ctx, key)
	require.NoError(t, locker.Acquire(ctx, key))
}

func TestLockerKeysAreIndependent(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	require.NoError(t, locker.Acquire(ctx, SettlementLockKey("closing", 1)))
	require.NoError(t, locker.Acquire(ctx, SettlementLockKey("closing", 2)))
	require.NoError(t, locker.Acquire(ctx, SettlementLockKey("commission", 1)))
}

func TestLockerExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := SettlementLockKey("closing", 9)

	require.NoError(t, locker.Acquire(ctx, key))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, locker.Acquire(ctx, key))
}

func TestLockerNilSafe(t *testing.T) {
	var locker *Locker
	require.NoError(t, locker.Acquire(context.Background(), "k"))
	locker.Release(context.Background(), "k")
}
