package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"pulsehub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	Limit     int    // Requests per second
	Burst     int    // Burst size
	KeyPrefix string // Redis key prefix
}

// tokenBucketScript keeps one hash per producer with fields tokens and ts.
// ARGV: rate, capacity, now (seconds, fractional), cost.
// Returns {allowed, remaining, retry_after}; the floats come back as strings
// since redis truncates Lua numbers to integers.
var tokenBucketScript = redis.NewScript(`
local rate, capacity = tonumber(ARGV[1]), tonumber(ARGV[2])
local now, cost = tonumber(ARGV[3]), tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now
tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)

if tokens < cost then
  return {0, tostring(tokens), tostring((cost - tokens) / rate)}
end

tokens = tokens - cost
redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("EXPIRE", KEYS[1], math.ceil(capacity / rate * 2))
return {1, tostring(tokens), "0"}
`)

const localIdle = 10 * time.Minute

type verdict struct {
	allowed    bool
	remaining  int
	retryAfter time.Duration
}

type localBucket struct {
	limiter *rate.Limiter
	seen    atomic.Int64
}

type bucketLimiter struct {
	rdb    *redis.Client
	rps    int
	burst  int
	prefix string

	// used while redis is unreachable
	local     sync.Map
	lastSweep atomic.Int64
}

func (l *bucketLimiter) remote(ctx context.Context, id string) (verdict, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.prefix + id}, l.rps, l.burst, now, 1).Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(res) != 3 {
		return verdict{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	allowed, _ := res[0].(int64)
	remaining := parseFloat(res[1])
	retry := parseFloat(res[2])
	return verdict{
		allowed:    allowed == 1,
		remaining:  int(remaining),
		retryAfter: time.Duration(retry * float64(time.Second)),
	}, nil
}

func (l *bucketLimiter) fallback(id string) verdict {
	now := time.Now()
	l.sweep(now)

	v, _ := l.local.LoadOrStore(id, &localBucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)})
	b := v.(*localBucket)
	b.seen.Store(now.UnixNano())

	if !b.limiter.AllowN(now, 1) {
		return verdict{retryAfter: time.Second}
	}
	return verdict{allowed: true, remaining: int(b.limiter.TokensAt(now))}
}

// sweep drops idle local buckets, at most once per idle period.
func (l *bucketLimiter) sweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(localIdle) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	l.local.Range(func(key, value any) bool {
		if now.UnixNano()-value.(*localBucket).seen.Load() > int64(localIdle) {
			l.local.Delete(key)
		}
		return true
	})
}

// limiterIdentity buckets producers by API key and everyone else by IP.
func limiterIdentity(c *gin.Context) string {
	if key := c.GetHeader("X-Pulse-Key"); key != "" {
		return "key:" + key
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware applies a token bucket shared through redis. When
// redis is unreachable each process falls back to its own in-memory buckets.
func RateLimitMiddleware(rdb *redis.Client, cfg RateLimiterConfig) gin.HandlerFunc {
	l := &bucketLimiter{rdb: rdb, rps: cfg.Limit, burst: cfg.Burst, prefix: cfg.KeyPrefix}
	if l.rps <= 0 {
		l.rps = 5
	}
	if l.burst <= 0 {
		l.burst = l.rps
	}
	if l.prefix == "" {
		l.prefix = "pulsehub:ratelimit:"
	}
	l.lastSweep.Store(time.Now().UnixNano())

	return func(c *gin.Context) {
		id := limiterIdentity(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 100*time.Millisecond)
		v, err := l.remote(ctx, id)
		cancel()
		if err != nil {
			logger.Warn("redis rate limit unavailable, using local buckets",
				zap.String("client", id),
				zap.Error(err))
			v = l.fallback(id)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.rps))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		if !v.allowed {
			retry := int(math.Ceil(v.retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retry))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(v.retryAfter).Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func parseFloat(v any) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case int64:
		return float64(val)
	default:
		return 0
	}
}
