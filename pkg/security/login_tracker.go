package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LoginTrackerConfig holds configuration for login tracking
type LoginTrackerConfig struct {
	MaxAttempts   int           // Maximum failed attempts before block (default: 5)
	AttemptWindow time.Duration // Time window for tracking attempts (default: 15min)
	BlockDuration time.Duration // How long to block after max attempts (default: 15min)
	UseIPTracking bool          // Also track by IP address (default: true)
}

// DefaultLoginTrackerConfig returns sensible defaults
func DefaultLoginTrackerConfig() LoginTrackerConfig {
	return LoginTrackerConfig{
		MaxAttempts:   5,
		AttemptWindow: 15 * time.Minute,
		BlockDuration: 15 * time.Minute,
		UseIPTracking: true,
	}
}

// LoginTracker tracks failed login attempts and enforces blocks. Counters live
// in Redis when a client is given, otherwise in process memory.
type LoginTracker struct {
	config LoginTrackerConfig
	client *goredis.Client
	logger *SecurityLogger

	mu      sync.Mutex
	local   map[string]*localCounter
	nowFunc func() time.Time
}

type localCounter struct {
	count     int
	expiresAt time.Time
}

// NewLoginTracker creates a new login tracker with the given config
func NewLoginTracker(config LoginTrackerConfig, client *goredis.Client, logger *SecurityLogger) *LoginTracker {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &LoginTracker{
		config:  config,
		client:  client,
		logger:  logger,
		local:   make(map[string]*localCounter),
		nowFunc: time.Now,
	}
}

// Redis key patterns
const (
	failLoginUserPrefix    = "fail:login:user:"
	failLoginIPPrefix      = "fail:login:ip:"
	blockedLoginUserPrefix = "blocked:login:user:"
	blockedLoginIPPrefix   = "blocked:login:ip:"
)

// Lua script for atomic increment with TTL on first set
// KEYS[1] = counter key
// ARGV[1] = TTL in seconds
// Returns: current count after increment
const incrWithTTLScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

func normalizeSubject(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsBlocked checks if the given email or IP is currently blocked
func (lt *LoginTracker) IsBlocked(ctx context.Context, email, ip string) (bool, error) {
	keys := []string{blockedLoginUserPrefix + normalizeSubject(email)}
	if lt.config.UseIPTracking && ip != "" {
		keys = append(keys, blockedLoginIPPrefix+ip)
	}

	if lt.client == nil {
		for _, k := range keys {
			if lt.localGet(k) > 0 {
				return true, nil
			}
		}
		return false, nil
	}

	exists, err := lt.client.Exists(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check login block: %w", err)
	}
	return exists > 0, nil
}

// RecordFailedAttempt records a failed login attempt and returns whether the
// subject is now blocked along with the running attempt count.
func (lt *LoginTracker) RecordFailedAttempt(ctx context.Context, email, ip, userAgent, requestID string) (bool, int, error) {
	subject := normalizeSubject(email)
	userKey := failLoginUserPrefix + subject

	userCount, err := lt.increment(ctx, userKey, lt.config.AttemptWindow)
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment user counter: %w", err)
	}
	if lt.config.UseIPTracking && ip != "" {
		_, _ = lt.increment(ctx, failLoginIPPrefix+ip, lt.config.AttemptWindow) // Best effort
	}

	lt.logger.LogLoginFailed(ctx, email, ip, userAgent, requestID, "invalid_credentials")

	if userCount >= lt.config.MaxAttempts {
		if err := lt.createBlock(ctx, subject, ip, requestID); err != nil {
			return true, userCount, fmt.Errorf("failed to create block: %w", err)
		}
		lt.logger.LogLoginBlocked(ctx, email, ip, userAgent, requestID)
		return true, userCount, nil
	}
	return false, userCount, nil
}

// ClearAttempts clears failed login attempts on successful login
func (lt *LoginTracker) ClearAttempts(ctx context.Context, email, ip string) error {
	keys := []string{failLoginUserPrefix + normalizeSubject(email)}
	if lt.config.UseIPTracking && ip != "" {
		keys = append(keys, failLoginIPPrefix+ip)
	}

	if lt.client == nil {
		lt.mu.Lock()
		for _, k := range keys {
			delete(lt.local, k)
		}
		lt.mu.Unlock()
		return nil
	}
	if err := lt.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// GetRemainingAttempts returns how many attempts remain before a block
func (lt *LoginTracker) GetRemainingAttempts(ctx context.Context, email string) (int, error) {
	key := failLoginUserPrefix + normalizeSubject(email)

	var count int
	if lt.client == nil {
		count = lt.localGet(key)
	} else {
		c, err := lt.client.Get(ctx, key).Int()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return 0, fmt.Errorf("failed to get attempt count: %w", err)
		}
		count = c
	}

	remaining := lt.config.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (lt *LoginTracker) increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	if lt.client == nil {
		return lt.localIncrement(key, ttl), nil
	}

	result, err := lt.client.Eval(ctx, incrWithTTLScript, []string{key}, int(ttl.Seconds())).Result()
	if err != nil {
		return 0, err
	}
	count, ok := result.(int64)
	if !ok {
		return 0, errors.New("unexpected result type from Lua script")
	}
	return int(count), nil
}

func (lt *LoginTracker) createBlock(ctx context.Context, subject, ip, requestID string) error {
	blockTTL := lt.config.BlockDuration
	userBlockKey := blockedLoginUserPrefix + subject

	if lt.client == nil {
		lt.localSet(userBlockKey, blockTTL)
		if lt.config.UseIPTracking && ip != "" {
			lt.localSet(blockedLoginIPPrefix+ip, blockTTL)
		}
	} else {
		if err := lt.client.Set(ctx, userBlockKey, "1", blockTTL).Err(); err != nil {
			return fmt.Errorf("failed to set user block: %w", err)
		}
		if lt.config.UseIPTracking && ip != "" {
			if err := lt.client.Set(ctx, blockedLoginIPPrefix+ip, "1", blockTTL).Err(); err != nil {
				// user is already blocked
				lt.logger.zapLogger.Warn("failed to set IP block", zap.Error(err))
			}
		}
	}

	lt.logger.LogBlockCreated(ctx, "email", subject, ip, requestID, int(blockTTL.Minutes()))
	return nil
}

func (lt *LoginTracker) localIncrement(key string, ttl time.Duration) int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	now := lt.nowFunc()
	c, ok := lt.local[key]
	if !ok || now.After(c.expiresAt) {
		c = &localCounter{expiresAt: now.Add(ttl)}
		lt.local[key] = c
	}
	c.count++
	return c.count
}

func (lt *LoginTracker) localSet(key string, ttl time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.local[key] = &localCounter{count: 1, expiresAt: lt.nowFunc().Add(ttl)}
}

func (lt *LoginTracker) localGet(key string) int {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	c, ok := lt.local[key]
	if !ok {
		return 0
	}
	if lt.nowFunc().After(c.expiresAt) {
		delete(lt.local, key)
		return 0
	}
	return c.count
}
