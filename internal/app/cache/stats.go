// Package cache provides a Redis-backed cache for per-user diagnostic
// aggregates.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
	"github.com/pretimmo/service_backend/pkg/logger"
)

// DefaultStatsTTL bounds staleness when an invalidation is missed.
const DefaultStatsTTL = 10 * time.Minute

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// StatsCache caches diagnostic stats per user.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*StatsCache, error) {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{client: client, ttl: ttl, log: log}, nil
}

// NewWithClient wraps an existing Redis client, mainly for tests.
func NewWithClient(client *redis.Client, ttl time.Duration, log *logger.Logger) *StatsCache {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	if ttl == 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{client: client, ttl: ttl, log: log}
}

// Close releases the Redis connection.
func (c *StatsCache) Close() error {
	return c.client.Close()
}

func statsKey(userID string) string {
	return "diagstats:" + userID
}

// GetStats returns the cached stats for the user and whether they were
// present.
func (c *StatsCache) GetStats(ctx context.Context, userID string) (diagnostic.Stats, bool, error) {
	raw, err := c.client.Get(ctx, statsKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return diagnostic.Stats{}, false, nil
	}
	if err != nil {
		return diagnostic.Stats{}, false, fmt.Errorf("get stats: %w", err)
	}

	var stats diagnostic.Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		// A corrupt entry behaves like a miss; the next Set overwrites it.
		c.log.WithError(err).WithField("user_id", userID).Warn("discarding corrupt stats cache entry")
		return diagnostic.Stats{}, false, nil
	}
	return stats, true, nil
}

// SetStats stores the stats for the user with the configured TTL.
func (c *StatsCache) SetStats(ctx context.Context, userID string, stats diagnostic.Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := c.client.Set(ctx, statsKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set stats: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats for the user.
func (c *StatsCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, statsKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate stats: %w", err)
	}
	return nil
}
