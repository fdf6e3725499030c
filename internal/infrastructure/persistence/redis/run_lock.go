package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSROOM RUN LOCK
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the lock only when still held by this owner, so a
// slow run cannot release a lock the TTL already handed to someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RunLock implements run.RunLock on a Redis SET NX key per classroom. The
// TTL protects against a crashed instance holding a classroom forever.
type RunLock struct {
	cache *Cache
	owner string
}

// NewRunLock creates a run lock with a unique owner token per instance.
func NewRunLock(cache *Cache) *RunLock {
	return &RunLock{
		cache: cache,
		owner: uuid.NewString(),
	}
}

var _ run.RunLock = (*RunLock)(nil)

// Acquire takes the classroom lock. A held lock resolves to
// shared.ErrRunInProgress.
func (l *RunLock) Acquire(ctx context.Context, classroom string) error {
	ok, err := l.cache.SetNXString(ctx, l.key(classroom), l.owner, TTLRunLock)
	if err != nil {
		return shared.WrapError("redis", "Acquire", shared.ErrServiceUnavailable,
			"classroom lock unavailable", err)
	}
	if !ok {
		return shared.NewDomainError("redis", "Acquire", shared.ErrRunInProgress,
			fmt.Sprintf("classroom %s is locked by another run", classroom))
	}
	return nil
}

// Release frees the classroom lock if this instance still owns it.
func (l *RunLock) Release(ctx context.Context, classroom string) error {
	err := releaseScript.Run(ctx, l.cache.Client(), []string{l.key(classroom)}, l.owner).Err()
	if err != nil && err != redis.Nil {
		return shared.WrapError("redis", "Release", shared.ErrServiceUnavailable,
			"classroom lock release failed", err)
	}
	return nil
}

func (l *RunLock) key(classroom string) string {
	return PrefixLock + PrefixRun + classroom
}
