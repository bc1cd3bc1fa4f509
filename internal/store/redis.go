package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const reminderLockKey = "keepsake:reminders:lock"

// Deletes the key only if it still holds our token, so a lock that expired
// and was taken by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-slot lock shared by every process pointing at the
// same Redis. The TTL bounds how long a crashed holder blocks others.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLock(opts *redis.Options, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: redis.NewClient(opts),
		key:    reminderLockKey,
		ttl:    ttl,
	}
}

// Ping checks the Redis connection.
func (l *RedisLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}

// Acquire tries once; ok is false when another holder has the lock.
func (l *RedisLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The tick context may already be cancelled on shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			logrus.Warnf("Failed to release reminder lock %s (expires in %s): %v", l.key, l.ttl, err)
		}
	}
	return release, true, nil
}
