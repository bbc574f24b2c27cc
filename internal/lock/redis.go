package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "alertbridge:lock:"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker shares leases between workers through Redis.
type RedisLocker struct {
	client   redis.UniversalClient
	interval time.Duration
}

// NewRedisLocker builds a locker on client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, interval: DefaultPollInterval}
}

// redisKey hashes the dedup key, which may be long or contain arbitrary text.
func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error) {
	lease := Lease{Key: key, Token: newToken()}
	rk := redisKey(key)
	err := poll(ctx, wait, l.interval, func() (bool, error) {
		return l.client.SetNX(ctx, rk, lease.Token, ttl).Result()
	})
	if err != nil {
		return Lease{}, err
	}
	lease.ExpiresAt = time.Now().Add(ttl)
	return lease, nil
}

func (l *RedisLocker) Resume(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	n, err := extendScript.Run(ctx, l.client, []string{redisKey(lease.Key)}, lease.Token, ttl.Milliseconds()).Int64()
	if err != nil {
		return Lease{}, err
	}
	if n == 0 {
		return Lease{}, ErrLeaseLost
	}
	lease.ExpiresAt = time.Now().Add(ttl)
	return lease, nil
}

func (l *RedisLocker) Release(ctx context.Context, lease Lease) error {
	return releaseScript.Run(ctx, l.client, []string{redisKey(lease.Key)}, lease.Token).Err()
}
