package redis

import (
	"context"
	"testing"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limits config.RateLimits) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &RateLimiter{redis: client, limits: limits}, mr
}

func TestRateLimiter_LimitFor(t *testing.T) {
	limiter, _ := newTestLimiter(t, config.RateLimits{Standard: 60, Professional: 300, Enterprise: 1200})

	tests := []struct {
		tier model.SubscriptionTier
		want int
	}{
		{model.TierStandard, 60},
		{model.TierProfessional, 300},
		{model.TierEnterprise, 1200},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, limiter.LimitFor(tt.tier))
	}
}

func TestRateLimiter_AllowWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, config.RateLimits{Standard: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "tenant-a", model.TierStandard)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be within budget", i+1)
	}

	ok, err := limiter.Allow(ctx, "tenant-a", model.TierStandard)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request should exceed the budget")
}

func TestRateLimiter_TenantsIsolated(t *testing.T) {
	limiter, _ := newTestLimiter(t, config.RateLimits{Standard: 1})
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "tenant-a", model.TierStandard)
	require.NoError(t, err)
	assert.True(t, ok)

	// tenant-a is now exhausted, tenant-b is not
	ok, err = limiter.Allow(ctx, "tenant-a", model.TierStandard)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "tenant-b", model.TierStandard)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t, config.RateLimits{Standard: 1})
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "tenant-a", model.TierStandard)
	require.NoError(t, err)
	assert.True(t, ok)

	// The counter key carries a TTL so the window clears itself
	mr.FastForward(3 * time.Minute)

	usage, err := limiter.Usage(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	limiter, _ := newTestLimiter(t, config.RateLimits{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(ctx, "tenant-a", model.TierStandard)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
