// Package locks provides the short-lived claims that serialize the two hot
// paths: at-most-one in-flight parse per document and at-most-one dashboard
// generation per (patient, day). Claims are advisory and TTL-bounded; the
// persistence layer's compare-and-swap remains the final arbiter.
package locks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

type RedisClaimer struct {
	client *redis.Client
}

func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, "claim:"+key, "1", ttl).Result()
}

func (c *RedisClaimer) Release(ctx context.Context, key string) {
	c.client.Del(ctx, "claim:"+key)
}
