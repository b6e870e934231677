// Package rediscache holds the Redis-backed caches. They are optimizations
// only; the system stays correct (just slower) when Redis is down.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache remembers recently processed webhook event ids so redelivered
// events can be acknowledged without re-applying them.
type ReplayCache struct {
	client *redis.Client
	prefix string
}

func NewReplayCache(client *redis.Client) *ReplayCache {
	return &ReplayCache{client: client, prefix: "pco:webhook:event:"}
}

// Seen reports whether the event id has been marked before. Read-only: a
// delivery whose mutations later fail must stay unmarked so the redelivery
// is applied.
func (c *ReplayCache) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("replay cache exists: %w", err)
	}
	return n > 0, nil
}

// Mark records the event id after its mutations have been applied.
func (c *ReplayCache) Mark(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+eventID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("replay cache set: %w", err)
	}
	return nil
}
