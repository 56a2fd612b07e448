package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"collections-engine/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisSlotGate caps in-flight provider calls across all engine processes
// sharing one redis.
type RedisSlotGate struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

func NewRedisSlotGate(rdb *redis.Client, key string, limit int, ttl time.Duration, log *slog.Logger) *RedisSlotGate {
	if key == "" {
		key = "dispatch:inflight"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisSlotGate{rdb: rdb, key: key, limit: limit, ttl: ttl, log: log}
}

func (g *RedisSlotGate) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireSlot(ctx, g.rdb, g.key, g.limit, g.ttl)
}

func (g *RedisSlotGate) Release(ctx context.Context) {
	if err := utils.ReleaseSlot(ctx, g.rdb, g.key); err != nil {
		// The key TTL reclaims the slot eventually.
		g.log.Warn("release in-flight slot", "key", g.key, "err", err)
	}
}
