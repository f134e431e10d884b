package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/audit"
	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/httputil"
	redisclient "github.com/kwizz/kwizz-go/internal/redis"
)

var rateLimitScript = goredis.NewScript(`
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
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// Limiter reports whether one more hit under key fits within limit.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

// RedisRateLimiter is a sliding window shared by all server instances.
// When Redis fails it degrades to a local window rather than failing open.
type RedisRateLimiter struct {
	client   goredis.Scripter
	window   time.Duration
	fallback *RateLimiter
}

func NewRedisRateLimiter(client goredis.Scripter, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		window:   window,
		fallback: NewRateLimiter(window),
	}
}

func (rl *RedisRateLimiter) Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64) {
	now := time.Now().Unix()

	result, err := rateLimitScript.Run(ctx, rl.client, []string{key}, now, int64(rl.window.Seconds()), limit).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed, using local window")
		return rl.fallback.Check(key, limit)
	}

	if len(result) != 3 {
		log.Warn().Str("key", key).Msg("unexpected redis rate limit result")
		return rl.fallback.Check(key, limit)
	}

	return result[0] == 1, int(result[1]), result[2]
}

// JoinRateLimitMiddleware limits join attempts per client address, which
// keeps pin guessing slow.
type JoinRateLimitMiddleware struct {
	limiter Limiter
	limit   int
	audit   audit.Logger
}

func NewJoinRateLimitMiddleware(limiter Limiter, limit int, auditLogger audit.Logger) *JoinRateLimitMiddleware {
	if auditLogger == nil {
		auditLogger = audit.Default
	}
	return &JoinRateLimitMiddleware{limiter: limiter, limit: limit, audit: auditLogger}
}

func (m *JoinRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)
		allowed, remaining, resetAt := m.limiter.Check(r.Context(), redisclient.JoinRateKey(ip), m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("ip", ip).Msg("join rate limit exceeded")
			m.audit.Log(r.Context(), audit.Event{
				Type:      audit.EventRateLimitExceed,
				IP:        ip,
				UserAgent: r.UserAgent(),
				Details:   map[string]interface{}{"limit": m.limit},
			})

			retryAfter := resetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
