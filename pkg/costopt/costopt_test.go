package costopt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatplane/internal/model"
	"chatplane/pkg/allocator"
	"chatplane/pkg/config"
)

type fakeAllocations struct {
	byTenant map[string]*model.ResourceAllocation
}

func (f *fakeAllocations) Get(_ context.Context, tenantID string) (*model.ResourceAllocation, error) {
	a, ok := f.byTenant[tenantID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return a, nil
}

func (f *fakeAllocations) List(_ context.Context) ([]*model.ResourceAllocation, error) {
	out := make([]*model.ResourceAllocation, 0, len(f.byTenant))
	for _, a := range f.byTenant {
		out = append(out, a)
	}
	return out, nil
}

type fakeUsage struct {
	byTenant map[string]*model.UsageStats
}

func (f *fakeUsage) GetWindow(_ context.Context, tenantID string, days int) (*model.UsageStats, error) {
	if s, ok := f.byTenant[tenantID]; ok {
		s.WindowDays = days
		return s, nil
	}
	return &model.UsageStats{TenantID: tenantID, WindowDays: days}, nil
}

type fakeAnalyses struct {
	upserts []*model.CostAnalysis
}

func (f *fakeAnalyses) Upsert(_ context.Context, a *model.CostAnalysis) error {
	f.upserts = append(f.upserts, a)
	return nil
}

func (f *fakeAnalyses) Get(_ context.Context, tenantID string) (*model.CostAnalysis, error) {
	for i := len(f.upserts) - 1; i >= 0; i-- {
		if f.upserts[i].TenantID == tenantID {
			return f.upserts[i], nil
		}
	}
	return nil, model.ErrNotFound
}

type fakeMover struct {
	moves   map[string]model.PoolTier
	failFor string
}

func (f *fakeMover) Reallocate(_ context.Context, tenantID string, pool model.PoolTier) (*model.ResourceAllocation, error) {
	if tenantID == f.failFor {
		return nil, errors.New("worker spawn failed")
	}
	if f.moves == nil {
		f.moves = make(map[string]model.PoolTier)
	}
	f.moves[tenantID] = pool
	return &model.ResourceAllocation{TenantID: tenantID, Pool: pool}, nil
}

type fixture struct {
	allocations *fakeAllocations
	usage       *fakeUsage
	analyses    *fakeAnalyses
	mover       *fakeMover
	opt         *CostOptimizer
}

func newFixture() *fixture {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	f := &fixture{
		allocations: &fakeAllocations{byTenant: make(map[string]*model.ResourceAllocation)},
		usage:       &fakeUsage{byTenant: make(map[string]*model.UsageStats)},
		analyses:    &fakeAnalyses{},
		mover:       &fakeMover{},
	}
	f.opt = NewCostOptimizer(cfg, f.allocations, f.usage, f.analyses, f.mover)
	return f
}

func (f *fixture) seed(tenantID string, pool model.PoolTier, usage *model.UsageStats) {
	spec := allocator.SpecFor(pool)
	f.allocations.byTenant[tenantID] = &model.ResourceAllocation{
		TenantID:   tenantID,
		Pool:       pool,
		HourlyCost: spec.HourlyCost(),
	}
	usage.TenantID = tenantID
	f.usage.byTenant[tenantID] = usage
}

func quietUsage() *model.UsageStats {
	return &model.UsageStats{DailyMessageAvg: 20, ConcurrentConnections: 1, ErrorRate: 0.5, AvgResponseTimeMs: 150}
}

func heavyUsage() *model.UsageStats {
	return &model.UsageStats{DailyMessageAvg: 800, ConcurrentConnections: 30, ErrorRate: 1, AvgResponseTimeMs: 400}
}

func TestOptimalPool(t *testing.T) {
	tests := []struct {
		name  string
		usage *model.UsageStats
		want  model.PoolTier
	}{
		{"quiet tenant shares", quietUsage(), model.PoolShared},
		{"medium volume gets semi", &model.UsageStats{DailyMessageAvg: 150, ConcurrentConnections: 2}, model.PoolSemiDedicated},
		{"medium concurrency gets semi", &model.UsageStats{DailyMessageAvg: 10, ConcurrentConnections: 8}, model.PoolSemiDedicated},
		{"high volume gets dedicated", heavyUsage(), model.PoolDedicated},
		{"high error rate gets dedicated", &model.UsageStats{DailyMessageAvg: 10, ErrorRate: 7}, model.PoolDedicated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, optimalPool(tt.usage))
		})
	}
}

func TestAnalyzeTenant_RecommendsDowngrade(t *testing.T) {
	f := newFixture()
	f.seed("t1", model.PoolDedicated, quietUsage())

	analysis, err := f.opt.AnalyzeTenant(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, model.PoolDedicated, analysis.Current.Pool)
	assert.Equal(t, model.PoolShared, analysis.Recommended.Pool)
	assert.InDelta(t, 180.0, analysis.Current.MonthlyCost, 0.001)
	assert.InDelta(t, 1.44, analysis.Recommended.MonthlyCost, 0.001)

	require.NotEmpty(t, analysis.Recommendations)
	rec := analysis.Recommendations[0]
	assert.Equal(t, model.RecommendationTierChange, rec.Type)
	assert.Equal(t, model.PoolShared, rec.TargetPool)
	assert.InDelta(t, 178.56, rec.EstimatedSavings, 0.001)
	assert.Equal(t, model.LevelLow, rec.Complexity)
	assert.Equal(t, model.LevelLow, rec.Risk)

	// Each analysis supersedes the cached one.
	require.Len(t, f.analyses.upserts, 1)
	assert.Equal(t, analysis, f.analyses.upserts[0])
}

func TestAnalyzeTenant_UpgradeIsNeverCheap(t *testing.T) {
	f := newFixture()
	f.seed("t1", model.PoolShared, heavyUsage())

	analysis, err := f.opt.AnalyzeTenant(context.Background(), "t1")
	require.NoError(t, err)

	require.NotEmpty(t, analysis.Recommendations)
	rec := analysis.Recommendations[len(analysis.Recommendations)-1]
	assert.Equal(t, model.RecommendationTierChange, rec.Type)
	assert.Equal(t, model.PoolDedicated, rec.TargetPool)
	assert.Negative(t, rec.EstimatedSavings)
	assert.Equal(t, model.LevelHigh, rec.Complexity)
}

func TestAnalyzeTenant_UnderUtilizationAdvisory(t *testing.T) {
	f := newFixture()
	// Semi-dedicated is the right tier by volume, but the connection count
	// barely touches the slot limit.
	f.seed("t1", model.PoolSemiDedicated, &model.UsageStats{DailyMessageAvg: 150, ConcurrentConnections: 2})

	analysis, err := f.opt.AnalyzeTenant(context.Background(), "t1")
	require.NoError(t, err)

	var found bool
	for _, rec := range analysis.Recommendations {
		if rec.Type == model.RecommendationUnderUtilization {
			found = true
			assert.Equal(t, model.PoolShared, rec.TargetPool)
			assert.InDelta(t, 12.96, rec.EstimatedSavings, 0.001)
		}
	}
	assert.True(t, found, "expected an under-utilization recommendation")
}

func TestAnalyzeTenant_PeakHourAdvisory(t *testing.T) {
	f := newFixture()
	f.seed("t1", model.PoolSemiDedicated, &model.UsageStats{
		DailyMessageAvg:       150,
		ConcurrentConnections: 6,
		PeakHours:             []int{9, 10, 11},
	})

	analysis, err := f.opt.AnalyzeTenant(context.Background(), "t1")
	require.NoError(t, err)

	var found bool
	for _, rec := range analysis.Recommendations {
		if rec.Type == model.RecommendationUsagePattern {
			found = true
			assert.Empty(t, rec.TargetPool, "advisory must not trigger a pool move")
		}
	}
	assert.True(t, found, "expected a usage-pattern recommendation")
}

func TestAnalyzeTenant_UnknownTenant(t *testing.T) {
	f := newFixture()
	_, err := f.opt.AnalyzeTenant(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOptimizeTenant_AutoExecutesLowRisk(t *testing.T) {
	f := newFixture()
	f.seed("t1", model.PoolDedicated, quietUsage())

	result, err := f.opt.OptimizeTenant(context.Background(), "t1")
	require.NoError(t, err)

	require.Len(t, result.Executed, 1)
	assert.Equal(t, model.PoolShared, f.mover.moves["t1"])
	assert.InDelta(t, 178.56, result.RealizedSavings, 0.001)
}

func TestOptimizeTenant_NeverExecutesRiskyMoves(t *testing.T) {
	f := newFixture()
	f.seed("t1", model.PoolShared, heavyUsage())

	result, err := f.opt.OptimizeTenant(context.Background(), "t1")
	require.NoError(t, err)

	assert.Empty(t, result.Executed)
	assert.NotEmpty(t, result.Skipped)
	assert.Empty(t, f.mover.moves)
}

func TestOptimizeTenant_SavingsFloorBlocksSmallWins(t *testing.T) {
	f := newFixture()
	f.opt.cfg.Optimizer.SavingsFloor = 1000
	f.seed("t1", model.PoolDedicated, quietUsage())

	result, err := f.opt.OptimizeTenant(context.Background(), "t1")
	require.NoError(t, err)

	assert.Empty(t, result.Executed)
	assert.Empty(t, f.mover.moves)
}

func TestOptimizeTenant_ExecutionFailure(t *testing.T) {
	f := newFixture()
	f.mover.failFor = "t1"
	f.seed("t1", model.PoolDedicated, quietUsage())

	result, err := f.opt.OptimizeTenant(context.Background(), "t1")
	assert.ErrorIs(t, err, model.ErrRecommendationExecutionFailed)
	require.NotNil(t, result)
	assert.Empty(t, result.Executed)
}

func TestOptimizeAll_BatchesAndCollectsFailures(t *testing.T) {
	f := newFixture()
	f.opt.cfg.Optimizer.BatchDelaySec = 1
	f.mover.failFor = "t-bad"
	f.seed("t1", model.PoolDedicated, quietUsage())
	f.seed("t-bad", model.PoolDedicated, quietUsage())
	f.seed("t3", model.PoolShared, quietUsage())

	result, err := f.opt.OptimizeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.TenantsAnalyzed)
	assert.Equal(t, 1, result.TenantsMoved)
	assert.Contains(t, result.Failures, "t-bad")
	assert.Equal(t, model.PoolShared, f.mover.moves["t1"])
	require.NotNil(t, result.Global)
}

func TestAnalyzeGlobalCosts(t *testing.T) {
	f := newFixture()
	f.seed("t1", model.PoolShared, quietUsage())
	f.seed("t2", model.PoolShared, quietUsage())
	f.seed("t3", model.PoolDedicated, heavyUsage())

	global, err := f.opt.AnalyzeGlobalCosts(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 1.44*2+180, global.TotalMonthlyCost, 0.001)
	assert.InDelta(t, 180*3, global.BaselineMonthlyCost, 0.001)
	assert.InDelta(t, (540.0-182.88)/540.0, global.CostReductionRatio, 0.0001)
	assert.Greater(t, global.CostEfficiencyScore, 0.0)
	assert.LessOrEqual(t, global.CostEfficiencyScore, 100.0)

	shared := global.Pools[model.PoolShared]
	assert.Equal(t, 2, shared.Tenants)
	assert.Equal(t, 1, shared.Slots)
	assert.InDelta(t, 20.0, shared.Utilization, 0.001)
}

func TestAnalyzeGlobalCosts_NoTenants(t *testing.T) {
	f := newFixture()

	global, err := f.opt.AnalyzeGlobalCosts(context.Background())
	require.NoError(t, err)

	assert.Zero(t, global.TotalMonthlyCost)
	assert.Zero(t, global.AvgCostPerTenant)
	assert.Zero(t, global.CostReductionRatio)
	assert.Zero(t, global.CostEfficiencyScore)
}

func TestTopSavings_RanksAndLimits(t *testing.T) {
	f := newFixture()
	f.seed("t-dedicated", model.PoolDedicated, quietUsage()) // 178.56 to shared
	f.seed("t-semi", model.PoolSemiDedicated, quietUsage())  // 12.96 to shared
	f.seed("t-right", model.PoolShared, quietUsage())        // already optimal

	savings, err := f.opt.TopSavings(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, savings, 2)
	assert.Equal(t, "t-dedicated", savings[0].TenantID)
	assert.Equal(t, model.PoolShared, savings[0].TargetPool)
	assert.InDelta(t, 178.56, savings[0].EstimatedSavings, 0.001)
	assert.Equal(t, "t-semi", savings[1].TenantID)

	capped, err := f.opt.TopSavings(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}
