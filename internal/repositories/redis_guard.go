package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/imgx/internal/session"
	"github.com/redis/go-redis/v9"
)

const (
	guardKeyPrefix   = "imgx:authorization_guard:"
	redisDialTimeout = 3 * time.Second
	redisPingTimeout = 2 * time.Second
)

// markScript sets KEYS[1] to ARGV[1] only when it currently holds ARGV[2],
// keeping its TTL, and returns the previous value.
var markScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[2] then
	redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
end
return cur
`)

// RedisGuard implements [session.Guard] with SETNX so that several machines sharing
// one redirect URL still exchange it once. Entries expire after ttl in case the
// owner dies before releasing.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisGuard wraps an existing client.
func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

// OpenRedisGuard parses redisURL, connects and verifies the server responds.
func OpenRedisGuard(ctx context.Context, redisURL string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	opts.DialTimeout = redisDialTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	return NewRedisGuard(client, ttl), nil
}

func (g *RedisGuard) key(k session.DedupeKey) string {
	return guardKeyPrefix + string(k)
}

func (g *RedisGuard) Acquire(ctx context.Context, key session.DedupeKey) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), session.GuardPending.String(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis guard acquire: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Mark(ctx context.Context, key session.DedupeKey, state session.GuardState) error {
	if err := session.CheckTransition(session.GuardPending, state); err != nil {
		return err
	}

	prev, err := markScript.Run(ctx, g.client, []string{g.key(key)}, state.String(), session.GuardPending.String()).Text()
	if errors.Is(err, redis.Nil) {
		return session.CheckTransition(session.GuardAbsent, state)
	}
	if err != nil {
		return fmt.Errorf("redis guard mark: %w", err)
	}

	current, err := session.ParseGuardState(prev)
	if err != nil {
		return err
	}
	return session.CheckTransition(current, state)
}

func (g *RedisGuard) Release(ctx context.Context, key session.DedupeKey) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("redis guard release: %w", err)
	}
	return nil
}

func (g *RedisGuard) State(ctx context.Context, key session.DedupeKey) (session.GuardState, error) {
	raw, err := g.client.Get(ctx, g.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return session.GuardAbsent, nil
	}
	if err != nil {
		return session.GuardAbsent, fmt.Errorf("redis guard state: %w", err)
	}
	return session.ParseGuardState(raw)
}

// Reset deletes every guard key under the prefix.
func (g *RedisGuard) Reset(ctx context.Context) error {
	iter := g.client.Scan(ctx, 0, guardKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis guard scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := g.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis guard reset: %w", err)
	}
	return nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
