package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// failScript counts an attempt and engages the lock atomically.
// KEYS[1] counter, KEYS[2] lock. ARGV: max attempts, window ms, lockout ms, now unix ms.
// Returns {1, lockedUntilMs} when locked, otherwise {0, count}.
var failScript = redis.NewScript(`
local locked = redis.call('GET', KEYS[2])
if locked then
	return {1, tonumber(locked)}
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if n >= tonumber(ARGV[1]) then
	local untilMs = tonumber(ARGV[4]) + tonumber(ARGV[3])
	redis.call('SET', KEYS[2], untilMs, 'PX', ARGV[3])
	redis.call('DEL', KEYS[1])
	return {1, untilMs}
end
return {0, n}
`)

// RedisLimiter is a Limiter backed by redis, shared by every server instance.
// The counter key expires with the window; the lock key holds the lockout expiry and expires with it.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	policy Policy
	nowF   func() time.Time
}

// NewRedisLimiter returns a RedisLimiter enforcing policy.
func NewRedisLimiter(rdb redis.UniversalClient, policy Policy) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		policy: policy,
		nowF:   func() time.Time { return time.Now().UTC() },
	}
}

func lockKey(key Key) string { return key.String() + ":locked" }

func (l *RedisLimiter) Locked(ctx context.Context, key Key) (time.Time, bool, error) {
	v, err := l.rdb.Get(ctx, lockKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: get lock: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: parse lock %q: %w", v, err)
	}
	until := time.UnixMilli(ms).UTC()
	if !l.nowF().Before(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key Key) (time.Time, bool, error) {
	res, err := failScript.Run(ctx, l.rdb,
		[]string{key.String(), lockKey(key)},
		l.policy.MaxAttempts,
		l.policy.Window.Milliseconds(),
		l.policy.Lockout.Milliseconds(),
		l.nowF().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: fail: %w", err)
	}
	if len(res) != 2 {
		return time.Time{}, false, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	if res[0] == 1 {
		return time.UnixMilli(res[1]).UTC(), true, nil
	}
	return time.Time{}, false, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key Key) error {
	if err := l.rdb.Del(ctx, key.String(), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: reset: %w", err)
	}
	return nil
}
