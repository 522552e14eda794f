// Package dedup guards event handlers against gateway redelivery. The
// handlers are idempotent anyway; the guard just saves the redundant
// platform round-trips.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard tracks recently seen event keys in Redis. A nil Guard is valid and
// never reports a key as seen.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Guard. ttl bounds how long an event key is remembered.
func New(client *redis.Client, ttl time.Duration) *Guard {
	return &Guard{client: client, ttl: ttl}
}

// Seen records the key and reports whether it had already been recorded.
// Redis errors fail open: an unreachable guard never blocks event handling.
func (g *Guard) Seen(ctx context.Context, key string) bool {
	if g == nil || g.client == nil {
		return false
	}
	set, err := g.client.SetNX(ctx, "event:"+key, "1", g.ttl).Result()
	if err != nil {
		return false
	}
	return !set
}
