package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockKeyPrefix = "lock:lesson:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// LessonLock is a cross-process mutex per lesson built on SET NX with a TTL.
// The holder renews the TTL every third of it, so the TTL only bounds how long
// a crashed holder blocks the lesson.
type LessonLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLessonLock(client *redis.Client, ttl time.Duration) *LessonLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &LessonLock{client: client, ttl: ttl}
}

// Acquire takes the lock for key. acquired is false when another holder has
// it. The returned release func is safe to call more than once.
func (l *LessonLock) Acquire(ctx context.Context, key string) (release func(), acquired bool, err error) {
	token := uuid.New().String()
	redisKey := lockKeyPrefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lesson lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	go l.keepAlive(redisKey, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			// the run context may already be cancelled; release on a fresh one
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err()
		})
	}, true, nil
}

func (l *LessonLock) keepAlive(redisKey, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				// expired and taken by someone else
				return
			}
		}
	}
}
