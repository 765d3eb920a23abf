package labcore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// decisionCache caches context-free permission decisions in Redis. The grant
// table is immutable for the process lifetime, so a (role, action) decision
// cannot go stale until redeploy; the TTL bounds staleness across deploys.
// Context-dependent decisions (technician job scoping) are never cached.
type decisionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func newDecisionCache(client *redis.Client, prefix string, ttl time.Duration) *decisionCache {
	if prefix == "" {
		prefix = "labcore:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &decisionCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *decisionCache) key(role Role, action Action) string {
	return fmt.Sprintf("%sdecision:%s:%s", c.prefix, role, action)
}

// get returns (allowed, hit). Any Redis error is treated as a miss.
func (c *decisionCache) get(ctx context.Context, role Role, action Action) (bool, bool) {
	if c == nil || c.client == nil {
		return false, false
	}
	val, err := c.client.Get(ctx, c.key(role, action)).Result()
	if err != nil {
		return false, false
	}
	return val == "true", true
}

func (c *decisionCache) set(ctx context.Context, role Role, action Action, allowed bool) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, c.key(role, action), fmt.Sprintf("%t", allowed), c.ttl)
}

// invalidate removes all cached decisions under this prefix.
func (c *decisionCache) invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	keys, err := c.client.Keys(ctx, c.prefix+"decision:*").Result()
	if err != nil {
		return err
	}
	for _, key := range keys {
		c.client.Del(ctx, key)
	}
	return nil
}
