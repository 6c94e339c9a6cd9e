package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another process")

// ReleaseFunc gives a lock back. Releasing an expired or foreign lock is a no-op.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out named, expiring locks.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// Only the holder that set the token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX so the lock is shared across processes.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLocker builds a locker namespacing keys under prefix.
func NewRedisLocker(client redis.Cmdable, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock acquires key for ttl or returns ErrLockHeld.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	name := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}, nil
}

// LocalLocker implements Locker inside a single process. Used when Redis is disabled.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

// NewLocalLocker returns an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), nowFn: time.Now}
}

// TryLock acquires key for ttl or returns ErrLockHeld.
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrLockHeld
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if current, ok := l.held[key]; ok && current.Equal(expires) {
				delete(l.held, key)
			}
		})
		return nil
	}, nil
}
