package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/listings/internal/lock"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRunLock_ExclusiveUntilReleased(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()
	l := lock.NewRunLock(client, "listings", time.Minute)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, lock.ErrLockHeld)

	require.NoError(t, release(ctx))

	release2, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestRunLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()
	l := lock.NewRunLock(client, "listings", time.Minute)

	_, err := l.Acquire(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = l.Acquire(ctx)
	require.NoError(t, err)
}

func TestRunLock_StaleReleaseKeepsSuccessorLock(t *testing.T) {
	mr, client := setup(t)
	ctx := context.Background()
	l := lock.NewRunLock(client, "listings", time.Minute)

	staleRelease, err := l.Acquire(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = l.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, staleRelease(ctx))
	assert.True(t, mr.Exists(l.Key()))
}

func TestRunLock_RedisDown(t *testing.T) {
	mr, client := setup(t)
	mr.Close()

	_, err := lock.NewRunLock(client, "listings", time.Minute).Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrLockHeld)
}

func TestRunLock_KeyedByAlias(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()

	_, err := lock.NewRunLock(client, "listings", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	_, err = lock.NewRunLock(client, "listings_staging", time.Minute).Acquire(ctx)
	require.NoError(t, err)
}
