package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SupplyLockKey builds the redis key guarding a company's supply run.
// Concurrent runs over overlapping locations would double-provision, so
// callers must hold this lock for the whole run.
func SupplyLockKey(companyID int64) string {
	return fmt.Sprintf("supply:company:%d:lock", companyID)
}

// RunLock is a simple SETNX mutex with expiry.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock constructs a RunLock. The TTL bounds how long a crashed run
// can keep the key alive.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl}
}

// Acquire takes the named lock or reports ErrPlanningInProgress.
func (l *RunLock) Acquire(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return ErrPlanningInProgress
	}
	return nil
}

// Release drops the named lock.
func (l *RunLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
