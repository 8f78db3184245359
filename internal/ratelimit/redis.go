// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultKeyPrefix namespaces limiter keys in Redis.
const DefaultKeyPrefix = "recovery:ratelimit:"

// allowScript admits an attempt if the window has room. The first attempt
// creates the key and sets its expiry, which closes the window.
//
// KEYS[1] window key
// ARGV[1] limit
// ARGV[2] window length in milliseconds
var allowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisLimiter is a fixed-window limiter shared across processes through
// Redis. Check and increment run in one Lua script, so they are atomic on
// the server.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	length int64 // ms
}

// NewRedisLimiter creates a RedisLimiter. cfg.CleanupInterval and cfg.Now
// are ignored; Redis expiry closes windows.
func NewRedisLimiter(client redis.Scripter, cfg Config) *RedisLimiter {
	cfg = cfg.withDefaults()
	return &RedisLimiter{
		client: client,
		prefix: DefaultKeyPrefix,
		limit:  cfg.Limit,
		length: cfg.Window.Milliseconds(),
	}
}

// Allow records an attempt for key if its window has room. Redis errors are
// returned; callers decide whether to fail open or closed.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := allowScript.Run(ctx, l.client, []string{l.Key(key)}, l.limit, l.length).Int64()
	if err != nil {
		return false, oops.Code("RATELIMIT_BACKEND_FAILED").With("backend", "redis").Wrap(err)
	}
	return res == 1, nil
}

// Key returns the Redis key for an identifier. Identifiers are hashed so
// addresses are not stored in Redis.
func (l *RedisLimiter) Key(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return l.prefix + hex.EncodeToString(sum[:16])
}

// Connect parses a redis:// URL, creates a client, and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}
