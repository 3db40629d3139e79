package usage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	ts := time.Date(2024, time.March, 31, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	// 23:30 at UTC-2 is already April in UTC
	assert.Equal(t, "2024-04", PeriodKey(ts))
	assert.Equal(t, "2025-12", PeriodKey(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	used, err := l.Consumed(ctx, "2024-03")
	require.NoError(t, err)
	assert.Zero(t, used)

	total, err := l.Record(ctx, "2024-03", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)

	rem, err := l.Remaining(ctx, "2024-03", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(9880), rem)

	// other periods are independent
	rem, err = l.Remaining(ctx, "2024-04", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), rem)

	_, err = l.Record(ctx, "2024-03", -1)
	assert.Error(t, err)
}

func TestRemainingNeverNegative(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	_, err := l.Record(ctx, "2024-03", 10050)
	require.NoError(t, err)

	rem, err := l.Remaining(ctx, "2024-03", 10000)
	require.NoError(t, err)
	assert.Zero(t, rem)
}

func TestMemoryLedgerConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Record(ctx, "2024-03", 10)
		}()
	}
	wg.Wait()

	used, err := l.Consumed(ctx, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, int64(500), used)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	_, err := l.Record(ctx, "2024-03", 2500)
	require.NoError(t, err)

	s, err := GetStats(ctx, l, "2024-03", 10000)
	require.NoError(t, err)
	assert.Equal(t, Stats{Period: "2024-03", Used: 2500, Remaining: 7500, Limit: 10000, Percentage: 25}, s)

	s, err = GetStats(ctx, l, "2024-03", 0)
	require.NoError(t, err)
	assert.Zero(t, s.Percentage)
	assert.Zero(t, s.Remaining)
}

func TestRedisLedger(t *testing.T) {
	url := os.Getenv("LESSONCAST_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LESSONCAST_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	period := "test-" + time.Now().Format("150405.000000")
	defer client.Del(ctx, redisKeyPrefix+period)

	l := NewRedisLedger(client)
	used, err := l.Consumed(ctx, period)
	require.NoError(t, err)
	assert.Zero(t, used)

	total, err := l.Record(ctx, period, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), total)

	rem, err := l.Remaining(ctx, period, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(700), rem)

	ttl, err := client.TTL(ctx, redisKeyPrefix+period).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 39*24*time.Hour)
}
