package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginIPKeyPrefix = "login_ip:"

// RedisLoginCounter is a fixed-window counter shared by every instance: the
// first hit in a window sets the key's expiry.
type RedisLoginCounter struct {
	client redis.UniversalClient
}

func NewRedisLoginCounter(client redis.UniversalClient) *RedisLoginCounter {
	return &RedisLoginCounter{client: client}
}

func (c *RedisLoginCounter) AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, _ time.Time) (bool, time.Duration, error) {
	key := loginIPKeyPrefix + ip

	hits, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("increment login ip counter: %w", err)
	}
	if hits == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire login ip counter: %w", err)
		}
	}

	if hits <= int64(maxHits) {
		return true, 0, nil
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("read login ip counter ttl: %w", err)
	}
	// A key left without expiry by a failed Expire would block the IP forever.
	if ttl < 0 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire login ip counter: %w", err)
		}
		ttl = window
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	return false, ttl, nil
}
