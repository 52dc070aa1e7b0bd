package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Warning is a dismissible, non-fatal condition. The key embeds the day,
// so the same condition is raised at most once per (kind, day).
type Warning struct {
	Key     string
	Message string
}

// Error implements the error interface.
func (w *Warning) Error() string {
	return fmt.Sprintf("%s: %s", w.Key, w.Message)
}

// WarningKey builds the once-per-day key for a warning kind.
func WarningKey(kind string, day time.Time) string {
	return fmt.Sprintf("%s@%s", kind, day.Format("2006-01-02"))
}

// WarningStore tracks acknowledged warnings in redis.
type WarningStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWarningStore constructs the store. Entries expire after ttl; the day
// embedded in the key keeps expiry from suppressing a later day's warning.
func NewWarningStore(client *redis.Client, ttl time.Duration) *WarningStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &WarningStore{client: client, ttl: ttl}
}

// Acknowledged reports whether the key was already dismissed.
func (s *WarningStore) Acknowledged(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("shared: check warning %s: %w", key, err)
	}
	return n > 0, nil
}

// Acknowledge dismisses the key so the next run proceeds.
func (s *WarningStore) Acknowledge(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Set(ctx, s.redisKey(key), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("shared: acknowledge warning %s: %w", key, err)
	}
	return nil
}

func (s *WarningStore) redisKey(key string) string {
	return "warning:" + key
}
