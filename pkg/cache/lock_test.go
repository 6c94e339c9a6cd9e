package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludesSecondHolder(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.TryLock(ctx, "weekly", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "weekly", time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld))

	_, err = locker.TryLock(ctx, "other", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = locker.TryLock(ctx, "weekly", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLockerExpires(t *testing.T) {
	locker := NewLocalLocker()
	now := time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC)
	locker.nowFn = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, err := locker.TryLock(ctx, "weekly", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = locker.TryLock(ctx, "weekly", time.Minute)
	require.NoError(t, err)

	// the expired holder must not free the new holder's lock
	require.NoError(t, staleRelease(ctx))
	_, err = locker.TryLock(ctx, "weekly", time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld))
}
