package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/line-agent-relay/internal/redis"
	"github.com/openclaw/line-agent-relay/internal/util"
)

// UserLimiter decides whether a LINE user may send another message now.
type UserLimiter interface {
	Allow(ctx context.Context, userID string) (allowed bool, resetAt time.Time)
}

// rateLimitScript is a Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local resetAt = now + window
return {1, resetAt}
`)

// RedisRateLimiter is a per-user sliding window shared by all instances.
// Redis failures let the message through so that a Redis outage does not
// silence the bot.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, userID string) (bool, time.Time) {
	if rl.limit <= 0 {
		return true, time.Now()
	}

	now := time.Now().Unix()
	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{redisclient.UserRateLimitKey(userID)},
		now,
		int64(rl.window.Seconds()),
		rl.limit,
	).Int64Slice()

	if err != nil {
		log.Warn().
			Err(err).
			Str("userId", util.MaskUserID(userID)).
			Msg("rate limit check failed, allowing message")
		return true, time.Now().Add(rl.window)
	}

	if len(result) != 2 {
		log.Warn().Str("userId", util.MaskUserID(userID)).Msg("unexpected rate limit result, allowing message")
		return true, time.Now().Add(rl.window)
	}

	return result[0] == 1, time.Unix(result[1], 0)
}

const (
	memoryLimiterMaxEntries      = 10000
	memoryLimiterCleanupInterval = time.Minute
)

type rateLimitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryRateLimiter is the single-instance sliding window used when Redis
// is not configured.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	store       map[string]*rateLimitEntry
	lastCleanup time.Time
	limit       int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		store:       make(map[string]*rateLimitEntry),
		lastCleanup: time.Now(),
		limit:       limit,
		window:      window,
		now:         time.Now,
	}
}

func (rl *MemoryRateLimiter) Allow(ctx context.Context, userID string) (bool, time.Time) {
	now := rl.now()
	if rl.limit <= 0 {
		return true, now
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanup(now)

	entry, exists := rl.store[userID]
	if !exists {
		entry = &rateLimitEntry{}
		rl.store[userID] = entry
	}
	entry.lastAccess = now

	windowStart := now.Add(-rl.window)
	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	if len(entry.timestamps) >= rl.limit {
		return false, entry.timestamps[0].Add(rl.window)
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, entry.timestamps[0].Add(rl.window)
}

func (rl *MemoryRateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < memoryLimiterCleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > rl.window {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > memoryLimiterMaxEntries {
		dropped := 0
		for key := range rl.store {
			delete(rl.store, key)
			dropped++
			if dropped >= len(rl.store)/5 {
				break
			}
		}
	}
}
