// Package costopt models per-tier cost, analyzes tenant usage patterns
// and proposes/executes tier-migration recommendations.
package costopt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/allocator"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"
)

// Usage thresholds for the optimal-tier decision. Fixed policy values
// carried as constants; the usage window they read is configurable.
const (
	dedicatedDailyVolume = 500
	dedicatedConcurrency = 20
	dedicatedErrorRate   = 5.0

	semiDailyVolume = 100
	semiConcurrency = 5

	underUtilizationPct = 30
	overUtilizationPct  = 85
)

// AllocationReader is the slice of allocation storage the optimizer reads.
type AllocationReader interface {
	Get(ctx context.Context, tenantID string) (*model.ResourceAllocation, error)
	List(ctx context.Context) ([]*model.ResourceAllocation, error)
}

// UsageSource reads per-tenant usage windows.
type UsageSource interface {
	GetWindow(ctx context.Context, tenantID string, days int) (*model.UsageStats, error)
}

// AnalysisStore caches analyses; each write supersedes the previous one.
type AnalysisStore interface {
	Upsert(ctx context.Context, a *model.CostAnalysis) error
	Get(ctx context.Context, tenantID string) (*model.CostAnalysis, error)
}

// PoolMover executes a tier move. Implemented by the resource allocator.
type PoolMover interface {
	Reallocate(ctx context.Context, tenantID string, pool model.PoolTier) (*model.ResourceAllocation, error)
}

// CostOptimizer analyzes and optimizes tenant capacity cost.
type CostOptimizer struct {
	cfg         *config.Config
	allocations AllocationReader
	usage       UsageSource
	analyses    AnalysisStore
	mover       PoolMover
}

// NewCostOptimizer creates a cost optimizer
func NewCostOptimizer(cfg *config.Config, allocations AllocationReader, usage UsageSource, analyses AnalysisStore, mover PoolMover) *CostOptimizer {
	return &CostOptimizer{
		cfg:         cfg,
		allocations: allocations,
		usage:       usage,
		analyses:    analyses,
		mover:       mover,
	}
}

// AnalyzeTenant reads the tenant's allocation and usage window and builds
// a fresh cost analysis: current cost, optimal tier, projections and a
// ranked recommendation list. The cached analysis is superseded.
func (o *CostOptimizer) AnalyzeTenant(ctx context.Context, tenantID string) (*model.CostAnalysis, error) {
	alloc, err := o.allocations.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation: %w", err)
	}

	usage, err := o.usage.GetWindow(ctx, tenantID, o.cfg.Optimizer.UsageWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage window: %w", err)
	}

	optimal := optimalPool(usage)

	analysis := &model.CostAnalysis{
		TenantID:        tenantID,
		Current:         tierView(alloc.Pool, usage),
		Recommended:     tierView(optimal, usage),
		Recommendations: o.recommend(alloc.Pool, optimal, usage),
		AnalyzedAt:      time.Now().UTC(),
	}

	if err := o.analyses.Upsert(ctx, analysis); err != nil {
		logger.WarnCtx(ctx, "failed to cache cost analysis, tenant: %s, err: %v", tenantID, err)
	}
	return analysis, nil
}

// optimalPool maps usage to the cheapest pool that can serve it. High
// volume, concurrency or error rate forces dedicated; medium lands on
// semi-dedicated; everything else shares.
func optimalPool(usage *model.UsageStats) model.PoolTier {
	if usage.DailyMessageAvg >= dedicatedDailyVolume ||
		usage.ConcurrentConnections >= dedicatedConcurrency ||
		usage.ErrorRate >= dedicatedErrorRate {
		return model.PoolDedicated
	}
	if usage.DailyMessageAvg >= semiDailyVolume || usage.ConcurrentConnections >= semiConcurrency {
		return model.PoolSemiDedicated
	}
	return model.PoolShared
}

// tierView projects cost/utilization/efficiency for running this usage on
// the given pool. Efficiency is value-for-money: 100 on the cheapest pool
// that serves the usage, lower the more the tenant overpays.
func tierView(pool model.PoolTier, usage *model.UsageStats) model.TierCostView {
	spec := allocator.SpecFor(pool)
	optimalCost := allocator.SpecFor(optimalPool(usage)).MonthlyCost()

	cost := spec.MonthlyCost()
	efficiency := 100.0
	if cost > 0 {
		efficiency = clampPct(optimalCost / cost * 100)
	}

	utilization := 0.0
	if spec.Limits.MaxConcurrentMessages > 0 {
		utilization = clampPct(float64(usage.ConcurrentConnections) / float64(spec.Limits.MaxConcurrentMessages) * 100)
	}

	return model.TierCostView{
		Pool:        pool,
		MonthlyCost: cost,
		Utilization: utilization,
		Efficiency:  efficiency,
	}
}

// recommend derives the ranked recommendation list from the deterministic
// rule table.
func (o *CostOptimizer) recommend(current, optimal model.PoolTier, usage *model.UsageStats) []model.Recommendation {
	var recs []model.Recommendation

	currentCost := allocator.SpecFor(current).MonthlyCost()
	currentUtil := tierView(current, usage).Utilization

	if optimal != current {
		targetCost := allocator.SpecFor(optimal).MonthlyCost()
		recs = append(recs, model.Recommendation{
			Type:             model.RecommendationTierChange,
			Description:      fmt.Sprintf("move from %s to %s pool", current, optimal),
			TargetPool:       optimal,
			EstimatedSavings: currentCost - targetCost,
			Complexity:       moveComplexity(current, optimal),
			Risk:             moveRisk(current, optimal, usage),
		})
	}

	if currentUtil < underUtilizationPct && current != model.PoolShared && optimal == current {
		target := allocator.DemotePool(current)
		recs = append(recs, model.Recommendation{
			Type:             model.RecommendationUnderUtilization,
			Description:      fmt.Sprintf("utilization %.0f%% on %s pool, consider %s", currentUtil, current, target),
			TargetPool:       target,
			EstimatedSavings: currentCost - allocator.SpecFor(target).MonthlyCost(),
			Complexity:       moveComplexity(current, target),
			Risk:             moveRisk(current, target, usage),
		})
	}

	if currentUtil > overUtilizationPct && current != model.PoolDedicated && optimal == current {
		target := allocator.PromotePool(current)
		recs = append(recs, model.Recommendation{
			Type:             model.RecommendationOverUtilization,
			Description:      fmt.Sprintf("utilization %.0f%% on %s pool, consider %s", currentUtil, current, target),
			TargetPool:       target,
			EstimatedSavings: currentCost - allocator.SpecFor(target).MonthlyCost(),
			Complexity:       moveComplexity(current, target),
			Risk:             moveRisk(current, target, usage),
		})
	}

	// Traffic concentrated in a few hours suggests batching or scheduling
	// could smooth the peak; advisory only, no pool move.
	if len(usage.PeakHours) > 0 && len(usage.PeakHours) <= 4 && usage.DailyMessageAvg >= semiDailyVolume {
		recs = append(recs, model.Recommendation{
			Type:             model.RecommendationUsagePattern,
			Description:      "traffic concentrated in few peak hours, consider spreading scheduled sends",
			EstimatedSavings: currentCost * 0.1,
			Complexity:       model.LevelMedium,
			Risk:             model.LevelLow,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].EstimatedSavings > recs[j].EstimatedSavings
	})
	return recs
}

// moveComplexity: moving to shared is always a low-effort consolidation;
// shared straight to dedicated needs capacity planning.
func moveComplexity(from, to model.PoolTier) model.Level {
	if to == model.PoolShared {
		return model.LevelLow
	}
	if from == model.PoolShared && to == model.PoolDedicated {
		return model.LevelHigh
	}
	return model.LevelMedium
}

// moveRisk: quiet tenants move to shared safely; pulling a busy tenant off
// dedicated hardware risks its latency.
func moveRisk(from, to model.PoolTier, usage *model.UsageStats) model.Level {
	if from == model.PoolDedicated && to == model.PoolShared && usage.DailyMessageAvg >= dedicatedDailyVolume {
		return model.LevelHigh
	}
	if to == model.PoolShared && usage.DailyMessageAvg < semiDailyVolume {
		return model.LevelLow
	}
	return model.LevelMedium
}

// AnalyzeGlobalCosts aggregates per-pool statistics into the system-wide
// cost picture against the all-dedicated baseline.
func (o *CostOptimizer) AnalyzeGlobalCosts(ctx context.Context) (*model.GlobalCostAnalysis, error) {
	allocations, err := o.allocations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}

	global := &model.GlobalCostAnalysis{
		Pools:      make(map[model.PoolTier]model.PoolStats),
		AnalyzedAt: time.Now().UTC(),
	}

	byPool := make(map[model.PoolTier][]*model.ResourceAllocation)
	for _, a := range allocations {
		byPool[a.Pool] = append(byPool[a.Pool], a)
		global.TotalMonthlyCost += a.HourlyCost * 24 * 30
	}

	for pool, members := range byPool {
		spec := allocator.SpecFor(pool)
		slots := (len(members) + spec.UsersPerSlot - 1) / spec.UsersPerSlot

		utilization := 0.0
		if slots > 0 {
			utilization = clampPct(float64(len(members)) / float64(slots*spec.UsersPerSlot) * 100)
		}

		monthly := 0.0
		for _, m := range members {
			monthly += m.HourlyCost * 24 * 30
		}

		global.Pools[pool] = model.PoolStats{
			Pool:        pool,
			Tenants:     len(members),
			Slots:       slots,
			Utilization: utilization,
			MonthlyCost: monthly,
		}
	}

	n := len(allocations)
	global.BaselineMonthlyCost = allocator.BaselineHourlyCost() * 24 * 30 * float64(n)
	if n > 0 {
		global.AvgCostPerTenant = global.TotalMonthlyCost / float64(n)
	}
	if global.BaselineMonthlyCost > 0 {
		global.CostReductionRatio = (global.BaselineMonthlyCost - global.TotalMonthlyCost) / global.BaselineMonthlyCost
	}
	global.CostEfficiencyScore = efficiencyScore(global.CostReductionRatio, o.cfg.Optimizer.TargetReduction)

	return global, nil
}

// efficiencyScore normalizes achieved reduction against the target and
// clamps to [0,100].
func efficiencyScore(reduction, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return clampPct(reduction / target * 100)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
