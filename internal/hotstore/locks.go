package hotstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// lockReleaseScript only deletes the key if it still holds our token, so one
// goroutine can never release a lock another goroutine (who won it after our
// TTL expired) now holds.
var lockReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistLock is a held Redis-backed distributed lock (spec §5: "all mutations
// are fenced by per-order or per-symbol locks via Redis-backed distributed
// locks with TTL 30s").
type DistLock struct {
	store *Store
	key   string
	token string
}

// AcquireLock attempts to take the lock named by key, retrying with a short
// backoff until timeout elapses. Returns errs.ErrLockTimeout on failure.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl, timeout time.Duration) (*DistLock, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token := uuid.NewString()
	lockKey := "lock:" + key
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := s.rdb.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, errs.Wrap(errs.KindTransient, "redis.lock", err)
		}
		if ok {
			return &DistLock{store: s, key: lockKey, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errs.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

// Release drops the lock iff we still own it.
func (l *DistLock) Release(ctx context.Context) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	if err := lockReleaseScript.Run(ctx, l.store.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("hotstore: release lock %s: %w", l.key, err)
	}
	return nil
}
