package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go-marketplace-backend/internal/delivery/http/response"
	"go-marketplace-backend/pkg/redis"
	"go-marketplace-backend/pkg/security"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Time window duration
	Window time.Duration
	// Custom key extractor (default: IP-based)
	KeyFunc func(*gin.Context) string
	// Key prefix for Redis (default: "rl:ip:")
	KeyPrefix string
	// Whether to fail closed (reject) when Redis is unavailable
	FailClosed bool
}

// Lua script for atomic increment with TTL on first set
// KEYS[1] = counter key
// ARGV[1] = TTL in seconds
// Returns: [current_count, ttl_remaining]
const rateLimitLuaScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`

func clientIP(c *gin.Context) string { return c.ClientIP() }

// DefaultRateLimitConfig is the global per-IP budget.
func DefaultRateLimitConfig(limit int) RateLimitConfig {
	return RateLimitConfig{
		Limit:      limit,
		Window:     time.Minute,
		KeyPrefix:  "rl:ip:",
		FailClosed: false, // Fail open by default for availability
		KeyFunc:    clientIP,
	}
}

// AuthRateLimitConfig guards login and registration.
func AuthRateLimitConfig(limit int) RateLimitConfig {
	return RateLimitConfig{
		Limit:      limit,
		Window:     time.Minute,
		KeyPrefix:  "rl:auth:",
		FailClosed: true,
		KeyFunc:    clientIP,
	}
}

// OTPRateLimitConfig guards code verification and resend. Per-flow attempts
// are capped separately by the flow itself.
func OTPRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:      10,
		Window:     time.Minute,
		KeyPrefix:  "rl:otp:",
		FailClosed: true,
		KeyFunc:    clientIP,
	}
}

// UploadRateLimitConfig returns config for avatar uploads
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:      10,
		Window:     time.Minute,
		KeyPrefix:  "rl:upload:",
		FailClosed: false,
		KeyFunc:    clientIP,
	}
}

// localLimiters is the in-process fallback used when Redis is unavailable.
type localLimiters struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	lastGC   time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *localLimiters) allow(key string, cfg RateLimitConfig, now time.Time) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > 5*time.Minute {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > cfg.Window {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.limiters[key]
	if !ok {
		every := cfg.Window / time.Duration(cfg.Limit)
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(every), cfg.Limit)}
		l.limiters[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, now.Add(delay)
	}
	return true, now.Add(cfg.Window)
}

// RateLimitMiddleware creates a rate limiting middleware with the given config
// Uses Redis when available, falls back to in-memory when not
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	if config.Limit <= 0 {
		config.Limit = 1
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	local := &localLimiters{limiters: make(map[string]*localEntry)}

	return func(c *gin.Context) {
		fullKey := config.KeyPrefix + config.KeyFunc(c)
		now := time.Now()

		var (
			allowed   bool
			remaining int
			resetAt   time.Time
		)

		if redisClient := redis.Client(); redisClient != nil {
			count, reset, err := checkRateLimitRedis(c.Request.Context(), redisClient, fullKey, config)
			if err != nil {
				if config.FailClosed {
					logRateLimitError(c, "redis_error", err)
					response.Error(c, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again.", nil)
					c.Abort()
					return
				}
				allowed, resetAt = local.allow(fullKey, config, now)
			} else {
				allowed, resetAt = count <= config.Limit, reset
				remaining = config.Limit - count
			}
		} else {
			allowed, resetAt = local.allow(fullKey, config, now)
			if allowed {
				remaining = config.Limit - 1
			}
		}

		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			logRateLimitTriggered(c)

			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.",
				gin.H{"retry_after": retryAfter})
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkRateLimitRedis checks rate limit using Redis with atomic Lua script
func checkRateLimitRedis(ctx context.Context, client *goredis.Client, key string, config RateLimitConfig) (int, time.Time, error) {
	ttlSeconds := int(config.Window.Seconds())

	result, err := client.Eval(ctx, rateLimitLuaScript, []string{key}, ttlSeconds).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit eval failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}

	count, _ := arr[0].(int64)
	ttl, _ := arr[1].(int64)

	return int(count), time.Now().Add(time.Duration(ttl) * time.Second), nil
}

func logRateLimitTriggered(c *gin.Context) {
	security.DefaultLogger().LogRateLimitTriggered(
		c.Request.Context(),
		c.ClientIP(),
		c.GetHeader("User-Agent"),
		c.GetString(requestIDKey),
		c.FullPath(),
	)
}

func logRateLimitError(c *gin.Context, errorType string, err error) {
	security.DefaultLogger().Log(c.Request.Context(), security.SecurityEvent{
		Event:       security.EventRateLimitTriggered,
		SubjectType: "system",
		IP:          c.ClientIP(),
		RequestID:   c.GetString(requestIDKey),
		Details: map[string]interface{}{
			"error_type": errorType,
			"error":      err.Error(),
		},
	})
}
