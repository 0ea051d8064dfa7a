package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrLockKeyEmpty      = errors.New("lock_key_empty")
	ErrLockTTLInvalid    = errors.New("lock_ttl_invalid")
)

// Locker is a single-instance redis mutex (SET NX PX plus a token-checked
// release). It is an optimisation for callers whose correctness is already
// guarded by the database.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// TryLock returns ok=false without error when another holder owns key.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if !l.Enabled() {
		return nil, false, ErrLockNotConfigured
	}
	if key == "" {
		return nil, false, ErrLockKeyEmpty
	}
	if ttl <= 0 {
		return nil, false, ErrLockTTLInvalid
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{locker: l, key: key, token: token}, true, nil
}

func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.token == "" {
		return nil
	}
	err := lk.locker.script.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Err()
	lk.token = ""
	return err
}
