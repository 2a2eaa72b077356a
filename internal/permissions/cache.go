package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	console "authgate/internal/utils/logger"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved permission closures in Redis with a short TTL.
// It is strictly best-effort: a miss or an unreachable Redis never fails a
// resolution, and population races resolve as last-write-wins. Invalidation
// is an atomic DEL so a revoke is visible to the next scheduled request.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *console.Logger
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    console.New("PERM-CACHE"),
	}
}

func closureKey(userID, tenantSlug string) string {
	return fmt.Sprintf("permclosure:%s:%s", userID, tenantSlug)
}

// Get returns the cached closure, or nil on a miss.
func (c *Cache) Get(ctx context.Context, userID, tenantSlug string) (*Closure, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	key := closureKey(userID, tenantSlug)
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var closure Closure
	if err := json.Unmarshal([]byte(data), &closure); err != nil {
		// Corrupt entry, drop it rather than serve it.
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal closure: %w", err)
	}
	return &closure, nil
}

// Set stores a closure with the configured TTL.
func (c *Cache) Set(ctx context.Context, closure *Closure) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(closure)
	if err != nil {
		return fmt.Errorf("failed to marshal closure: %w", err)
	}
	return c.client.Set(ctx, closureKey(closure.UserID, closure.TenantSlug), data, c.ttl).Err()
}

// Invalidate removes the closure for one (user, tenant) pair.
func (c *Cache) Invalidate(ctx context.Context, userID, tenantSlug string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, closureKey(userID, tenantSlug)).Err()
}

// InvalidateUser removes every cached closure for a user regardless of tenant.
// Used on grant/revoke, where the caller may not know which slugs are cached.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	pattern := fmt.Sprintf("permclosure:%s:*", userID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
