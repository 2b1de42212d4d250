package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const opLockTTL = 10 * time.Second

// Owner-checked release so a lock that outlived its TTL cannot delete a
// successor's lock.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// opLock provides short per-operation mutual exclusion for read-modify-write
// flows on the record store (device confirmation, challenge fallback).
type opLock struct {
	redis *redis.Client
	ttl   time.Duration
}

func newOpLock(client *redis.Client) *opLock {
	return &opLock{redis: client, ttl: opLockTTL}
}

// Acquire takes the lock for key. It returns a release func and whether the
// lock was obtained. A backend failure is reported as an error, never as a
// held lock.
func (l *opLock) Acquire(ctx context.Context, key string) (func(), bool, error) {
	if l == nil || l.redis == nil {
		return nil, false, ErrEngineNotReady
	}

	owner := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, "adl:"+key, owner, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		_ = l.redis.Eval(context.Background(), releaseLockScript, []string{"adl:" + key}, owner).Err()
	}
	return release, true, nil
}
