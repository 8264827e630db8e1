package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pretimmo/service_backend/internal/app/domain/diagnostic"
)

func newTestCache(t *testing.T) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, time.Minute, nil), mr
}

func TestStatsRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, found, err := cache.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	stats := diagnostic.Stats{TotalCount: 3, AvgScore: 61, LatestScore: 70, FirstScore: 50, Progression: 20}
	require.NoError(t, cache.SetStats(ctx, "u1", stats))

	got, found, err := cache.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, stats, got)
}

func TestInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetStats(ctx, "u1", diagnostic.Stats{TotalCount: 1}))
	require.NoError(t, cache.Invalidate(ctx, "u1"))

	_, found, err := cache.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCorruptEntryBehavesLikeMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	mr.Set("diagstats:u1", "not-json")

	_, found, err := cache.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntryExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetStats(ctx, "u1", diagnostic.Stats{TotalCount: 2}))
	mr.FastForward(2 * time.Minute)

	_, found, err := cache.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)
}
