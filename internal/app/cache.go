package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/gradeinsight/internal/store"
)

const statsKeyTpl = "stats:%s" // stats:${tenant}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// StatsCache keeps per-tenant dashboard counts in redis. Failures are logged
// and treated as misses.
type StatsCache struct {
	enabled bool
	redis   redisClient
	ttl     time.Duration
}

func NewStatsCache(config *Config) (*StatsCache, error) {
	if !config.Cache.Enabled {
		return &StatsCache{enabled: false}, nil
	}

	opt, err := redis.ParseURL(config.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &StatsCache{
		enabled: true,
		redis:   client,
		ttl:     time.Duration(config.Cache.TTLSeconds) * time.Second,
	}, nil
}

func (c *StatsCache) Close() error {
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}

func (c *StatsCache) Get(ctx context.Context, tenantID string) (*store.TenantCounts, bool) {
	if !c.enabled {
		return nil, false
	}

	key := fmt.Sprintf(statsKeyTpl, tenantID)
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Debug.Printf("Redis error reading %s: %v", key, err)
		return nil, false
	}

	var counts store.TenantCounts
	if err := json.Unmarshal(raw, &counts); err != nil {
		logger.Debug.Printf("Dropping unreadable cache entry %s: %v", key, err)
		return nil, false
	}
	return &counts, true
}

func (c *StatsCache) Set(ctx context.Context, tenantID string, counts *store.TenantCounts) {
	if !c.enabled {
		return
	}

	raw, err := json.Marshal(counts)
	if err != nil {
		logger.Error.Printf("Failed to encode stats for %s: %v", tenantID, err)
		return
	}
	key := fmt.Sprintf(statsKeyTpl, tenantID)
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Debug.Printf("Redis error writing %s: %v", key, err)
	}
}

func (c *StatsCache) Invalidate(ctx context.Context, tenantID string) {
	if !c.enabled {
		return
	}

	key := fmt.Sprintf(statsKeyTpl, tenantID)
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		logger.Error.Printf("Failed to invalidate %s: %v", key, err)
	}
}
