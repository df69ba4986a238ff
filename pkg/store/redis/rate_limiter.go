package redis

import (
	"context"
	"fmt"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"

	"github.com/go-redis/redis/v8"
)

const rateLimitKeyPrefix = "ratelimit:events:" // ratelimit:events:{tenantID}:{minute}

// RateLimiter enforces per-tenant event budgets using fixed one-minute
// windows in Redis. Counters expire on their own, so a crashed instance
// never leaves a tenant throttled.
type RateLimiter struct {
	redis  *redis.Client
	limits config.RateLimits
}

// NewRateLimiter creates a rate limiter backed by Redis
func NewRateLimiter(redisClient *RedisClient, limits config.RateLimits) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient.GetClient(),
		limits: limits,
	}
}

// LimitFor returns the events-per-minute budget for a subscription tier
func (r *RateLimiter) LimitFor(tier model.SubscriptionTier) int {
	switch tier {
	case model.TierEnterprise:
		return r.limits.Enterprise
	case model.TierProfessional:
		return r.limits.Professional
	default:
		return r.limits.Standard
	}
}

// Allow consumes one slot of the tenant's current window. It returns false
// when the tenant has exhausted its per-minute budget.
func (r *RateLimiter) Allow(ctx context.Context, tenantID string, tier model.SubscriptionTier) (bool, error) {
	limit := r.LimitFor(tier)
	if limit <= 0 {
		return true, nil
	}

	key := windowKey(tenantID, time.Now())

	pipe := r.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

// Usage reports how much of the current window a tenant has consumed
func (r *RateLimiter) Usage(ctx context.Context, tenantID string) (int64, error) {
	count, err := r.redis.Get(ctx, windowKey(tenantID, time.Now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count, nil
}

func windowKey(tenantID string, now time.Time) string {
	return fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, tenantID, now.Unix()/60)
}
