package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a fixed-window counter store shared across gateway
// instances. Each window lives under its own key (base key + window start),
// so INCR is the whole read-modify-write and expiry handles cleanup.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment implements Store. Errors surface to the gate, which fails open.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	windowStart := time.Now().Truncate(window).Unix()
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	// Expiry slightly past the boundary so a straggling read still sees the
	// closed window.
	pipe.Expire(ctx, windowKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return incr.Val(), nil
}
