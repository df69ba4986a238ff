package costopt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/allocator"
	"chatplane/pkg/logger"
)

// OptimizationResult reports what one optimization pass did for a tenant.
type OptimizationResult struct {
	TenantID        string                 `json:"tenant_id"`
	Analysis        *model.CostAnalysis    `json:"analysis"`
	Executed        []model.Recommendation `json:"executed"`
	Skipped         []model.Recommendation `json:"skipped"`
	RealizedSavings float64                `json:"realized_savings"`
}

// GlobalOptimizationResult aggregates an OptimizeAll pass.
type GlobalOptimizationResult struct {
	TenantsAnalyzed int                       `json:"tenants_analyzed"`
	TenantsMoved    int                       `json:"tenants_moved"`
	RealizedSavings float64                   `json:"realized_savings"`
	Failures        map[string]string         `json:"failures,omitempty"`
	Global          *model.GlobalCostAnalysis `json:"global"`
}

// autoExecutable gates automatic execution: only low-risk, low-complexity
// pool moves whose estimated savings clear the configured floor.
func (o *CostOptimizer) autoExecutable(rec model.Recommendation) bool {
	return rec.TargetPool != "" &&
		rec.Risk == model.LevelLow &&
		rec.Complexity == model.LevelLow &&
		rec.EstimatedSavings > o.cfg.Optimizer.SavingsFloor
}

// OptimizeTenant analyzes one tenant and executes the recommendations that
// pass the auto-execution gate. Everything else is returned as skipped for
// an operator to act on.
func (o *CostOptimizer) OptimizeTenant(ctx context.Context, tenantID string) (*OptimizationResult, error) {
	analysis, err := o.AnalyzeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &OptimizationResult{TenantID: tenantID, Analysis: analysis}

	for _, rec := range analysis.Recommendations {
		if !o.autoExecutable(rec) {
			result.Skipped = append(result.Skipped, rec)
			continue
		}

		if _, err := o.mover.Reallocate(ctx, tenantID, rec.TargetPool); err != nil {
			logger.ErrorCtx(ctx, "recommendation execution failed, tenant: %s, target: %s, err: %v",
				tenantID, rec.TargetPool, err)
			return result, fmt.Errorf("%w: tenant %s to %s: %v",
				model.ErrRecommendationExecutionFailed, tenantID, rec.TargetPool, err)
		}

		logger.InfoCtx(ctx, "executed recommendation, tenant: %s, type: %s, target: %s, savings: %.2f",
			tenantID, rec.Type, rec.TargetPool, rec.EstimatedSavings)
		result.Executed = append(result.Executed, rec)
		result.RealizedSavings += rec.EstimatedSavings

		// A pool move invalidates the remaining recommendations, which
		// were computed against the old allocation.
		break
	}

	return result, nil
}

// OptimizeAll runs OptimizeTenant over every allocated tenant in batches,
// pausing between batches so mass migrations do not thundering-herd the
// supervisor. Per-tenant failures are collected, not fatal.
func (o *CostOptimizer) OptimizeAll(ctx context.Context) (*GlobalOptimizationResult, error) {
	allocations, err := o.allocations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}

	result := &GlobalOptimizationResult{Failures: make(map[string]string)}

	batchSize := o.cfg.Optimizer.BatchSize
	for i, a := range allocations {
		if i > 0 && i%batchSize == 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(time.Duration(o.cfg.Optimizer.BatchDelaySec) * time.Second):
			}
		}

		r, err := o.OptimizeTenant(ctx, a.TenantID)
		if err != nil {
			result.Failures[a.TenantID] = err.Error()
			if r == nil {
				continue
			}
		}
		result.TenantsAnalyzed++
		if len(r.Executed) > 0 {
			result.TenantsMoved++
			result.RealizedSavings += r.RealizedSavings
		}
	}

	global, err := o.AnalyzeGlobalCosts(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "global cost analysis failed after optimization pass, err: %v", err)
	} else {
		result.Global = global
	}

	logger.InfoCtx(ctx, "optimization pass complete, analyzed: %d, moved: %d, savings: %.2f, failures: %d",
		result.TenantsAnalyzed, result.TenantsMoved, result.RealizedSavings, len(result.Failures))
	return result, nil
}

// TopSavings ranks tenants by the largest positive savings any of their
// recommendations would realize. Feeds the autoscaler's rebalance pass.
func (o *CostOptimizer) TopSavings(ctx context.Context, limit int) ([]allocator.TenantSavings, error) {
	allocations, err := o.allocations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}

	var candidates []allocator.TenantSavings
	for _, a := range allocations {
		analysis, err := o.AnalyzeTenant(ctx, a.TenantID)
		if err != nil {
			logger.WarnCtx(ctx, "skipping tenant in savings ranking, tenant: %s, err: %v", a.TenantID, err)
			continue
		}
		for _, rec := range analysis.Recommendations {
			if rec.TargetPool == "" || rec.EstimatedSavings <= 0 {
				continue
			}
			candidates = append(candidates, allocator.TenantSavings{
				TenantID:         a.TenantID,
				TargetPool:       rec.TargetPool,
				EstimatedSavings: rec.EstimatedSavings,
			})
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EstimatedSavings > candidates[j].EstimatedSavings
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
