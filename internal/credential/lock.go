package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockBusy means another worker holds the refresh lock for the same
// (tenant, platform) pair right now.
var ErrLockBusy = errors.New("credential lock busy")

// Locker serializes credential refreshes per (tenant, platform) across
// jobs that happen to be due at the same time.
type Locker interface {
	// Acquire returns a release func, or ErrLockBusy.
	Acquire(ctx context.Context, key string) (func(), error)
}

// RedisLocker is the multi-instance locker: SET NX with a TTL so a crashed
// worker cannot hold a key forever.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: 45 * time.Second}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	k := "ocma:credlock:" + key
	ok, err := l.rdb.SetNX(ctx, k, "1", l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockBusy
	}
	return func() {
		_ = l.rdb.Del(context.Background(), k).Err()
	}, nil
}

// MutexLocker is the single-process locker used in tests and deployments
// without redis.
type MutexLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{held: make(map[string]bool)}
}

func (l *MutexLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLockBusy
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
