// Package lock provides the advisory Redis lock that keeps one reclassify run
// in flight per index alias.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another run holds the lock.
var ErrLockHeld = errors.New("reclassify lock held by another run")

const keyPrefix = "listings:reclassify:lock:"

// releaseScript deletes the key only while it still holds our token, so a
// run that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a SET NX PX lock keyed by index alias.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRunLock creates a lock for alias that expires after ttl.
func NewRunLock(client *redis.Client, alias string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: keyPrefix + alias, ttl: ttl}
}

// Key returns the Redis key guarding the alias.
func (l *RunLock) Key() string {
	return l.key
}

// Acquire takes the lock. It returns ErrLockHeld when another holder exists
// and a wrapped error when Redis cannot be reached.
func (l *RunLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(releaseCtx context.Context) error {
		if runErr := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); runErr != nil {
			return fmt.Errorf("release lock %s: %w", l.key, runErr)
		}
		return nil
	}
	return release, nil
}
