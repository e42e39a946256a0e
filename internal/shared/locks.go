package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettlementLockKey builds redis keys for settlement critical sections.
func SettlementLockKey(target string, id int64) string {
	return fmt.Sprintf("settlement:%s:%d:lock", target, id)
}

// Locker guards critical sections with a redis SETNX mutex.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker constructs a Locker with the given lock TTL.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes the lock or returns a conflict error when it is already held.
func (l *Locker) Acquire(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared/locks: acquire %s: %w", key, err)
	}
	if !ok {
		return Conflictf("operation already in progress")
	}
	return nil
}

// Release drops the lock. Safe to call on a lock that already expired.
func (l *Locker) Release(ctx context.Context, key string) {
	if l == nil || l.client == nil {
		return
	}
	_ = l.client.Del(ctx, key).Err()
}
