package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached serves profiles from Redis and falls back to the backing directory. Redis errors
// degrade to a cache miss. Unknown users are never cached.
type Cached struct {
	next   Directory
	kv     KV
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCached(next Directory, kv KV, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, kv: kv, ttl: ttl, prefix: "hourbook:user:", logger: logger}
}

func (c *Cached) FindByID(ctx context.Context, id string) (User, error) {
	key := c.prefix + id

	raw, err := c.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var u User
		if jsonErr := json.Unmarshal(raw, &u); jsonErr == nil {
			return u, nil
		}
		c.logger.Warn("discarding undecodable cached user", "user_id", id)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("user cache read failed", "user_id", id, "err", err)
	}

	u, err := c.next.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	if payload, err := json.Marshal(u); err == nil {
		if err := c.kv.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("user cache write failed", "user_id", id, "err", err)
		}
	}
	return u, nil
}
