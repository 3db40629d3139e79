// Package usage tracks characters consumed from the monthly speech quota.
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Ledger is the monthly character counter consulted before every real
// speech synthesis call.
type Ledger interface {
	Consumed(ctx context.Context, period string) (int64, error)
	Record(ctx context.Context, period string, chars int64) (int64, error)
	Remaining(ctx context.Context, period string, quota int64) (int64, error)
}

// PeriodKey returns the UTC calendar month of t, e.g. "2024-03".
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func remaining(consumed, quota int64) int64 {
	if r := quota - consumed; r > 0 {
		return r
	}
	return 0
}

// --- Memory ledger ---

// MemoryLedger keeps counters for the lifetime of the process.
type MemoryLedger struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{counts: make(map[string]int64)}
}

func (l *MemoryLedger) Consumed(_ context.Context, period string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[period], nil
}

func (l *MemoryLedger) Record(_ context.Context, period string, chars int64) (int64, error) {
	if chars < 0 {
		return 0, fmt.Errorf("negative usage %d", chars)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[period] += chars
	return l.counts[period], nil
}

func (l *MemoryLedger) Remaining(ctx context.Context, period string, quota int64) (int64, error) {
	used, err := l.Consumed(ctx, period)
	if err != nil {
		return 0, err
	}
	return remaining(used, quota), nil
}

// --- Redis ledger ---

const (
	redisKeyPrefix = "usage:tts:"
	redisKeyTTL    = 40 * 24 * time.Hour
)

// RedisLedger shares the counter across processes with INCRBY.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) key(period string) string {
	return redisKeyPrefix + period
}

func (l *RedisLedger) Consumed(ctx context.Context, period string) (int64, error) {
	n, err := l.client.Get(ctx, l.key(period)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage for %s: %w", period, err)
	}
	return n, nil
}

func (l *RedisLedger) Record(ctx context.Context, period string, chars int64) (int64, error) {
	if chars < 0 {
		return 0, fmt.Errorf("negative usage %d", chars)
	}
	key := l.key(period)
	pipe := l.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, chars)
	pipe.Expire(ctx, key, redisKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record usage for %s: %w", period, err)
	}
	return incr.Val(), nil
}

func (l *RedisLedger) Remaining(ctx context.Context, period string, quota int64) (int64, error) {
	used, err := l.Consumed(ctx, period)
	if err != nil {
		return 0, err
	}
	return remaining(used, quota), nil
}

// --- Stats ---

type Stats struct {
	Period     string  `json:"period"`
	Used       int64   `json:"used"`
	Remaining  int64   `json:"remaining"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// GetStats summarizes consumption of period against quota.
func GetStats(ctx context.Context, l Ledger, period string, quota int64) (Stats, error) {
	used, err := l.Consumed(ctx, period)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Period:    period,
		Used:      used,
		Remaining: remaining(used, quota),
		Limit:     quota,
	}
	if quota > 0 {
		s.Percentage = math.Round(float64(used)/float64(quota)*10000) / 100
	}
	return s, nil
}

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*RedisLedger)(nil)
)
