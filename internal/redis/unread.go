package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unreadTTL bounds staleness: a counter untouched this long is dropped and
// recomputed from the database on the next read.
const unreadTTL = 7 * 24 * time.Hour

// UnreadCounter caches per-user unread counts so the badge query never
// hits the database on the hot path. The database stays the source of
// truth; on a cache miss the feed service recomputes and seeds the key.
type UnreadCounter struct {
	client *Client
	logger *zap.Logger
}

// NewUnreadCounter creates an unread counter cache.
func NewUnreadCounter(client *Client, logger *zap.Logger) *UnreadCounter {
	return &UnreadCounter{client: client, logger: logger}
}

func (u *UnreadCounter) key(userID uuid.UUID) string {
	return fmt.Sprintf("unread:%s", userID)
}

// Get returns the cached count and whether the key existed.
func (u *UnreadCounter) Get(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	count, err := u.client.rdb.Get(ctx, u.key(userID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	return count, true, nil
}

// Set seeds the counter after a database recount.
func (u *UnreadCounter) Set(ctx context.Context, userID uuid.UUID, count int64) error {
	if err := u.client.rdb.Set(ctx, u.key(userID), count, unreadTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Incr bumps the counter when a new in-app notification is created. Only
// applied when the key exists: a missing key means the next read recounts
// from the database anyway, and blind INCR would seed a wrong zero base.
func (u *UnreadCounter) Incr(ctx context.Context, userID uuid.UUID) error {
	key := u.key(userID)

	exists, err := u.client.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	if exists == 0 {
		return nil
	}

	pipe := u.client.rdb.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, unreadTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached value after read-state mutations; cheaper
// and race-safer than decrementing under concurrent marks.
func (u *UnreadCounter) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := u.client.rdb.Del(ctx, u.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
