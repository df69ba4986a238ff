package allocator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"

	"github.com/google/uuid"
)

const cooldownReason = "within cooldown period"

// scalingTarget is one tenant move inside a planned action.
type scalingTarget struct {
	tenantID string
	pool     model.PoolTier
}

// scalingPlan is what one autoscaling pass settled on before execution.
type scalingPlan struct {
	action  model.ScalingAction
	reason  string
	targets []scalingTarget
}

// AutoScaler runs the periodic scaling loop: collect metrics, pick exactly
// one action, execute it tenant by tenant, record the decision.
type AutoScaler struct {
	cfg       *config.Config
	allocator *Allocator
	metrics   *MetricsCollector
	usage     UsageSource
	savings   SavingsSource
	decisions DecisionStore
	history   *DecisionHistory
	lock      DistributedLock

	mu          sync.RWMutex
	enabled     bool
	running     bool
	stopCh      chan struct{}
	lastRunTime time.Time
}

// NewAutoScaler creates the autoscaling loop
func NewAutoScaler(cfg *config.Config, alloc *Allocator, metrics *MetricsCollector, usage UsageSource, savings SavingsSource, decisions DecisionStore, lock DistributedLock) *AutoScaler {
	if lock == nil {
		lock = NewRedisDistributedLock(nil, autoscalerLockKey)
	}
	return &AutoScaler{
		cfg:       cfg,
		allocator: alloc,
		metrics:   metrics,
		usage:     usage,
		savings:   savings,
		decisions: decisions,
		history:   NewDecisionHistory(cfg.AutoScaler.HistoryCap),
		lock:      lock,
		enabled:   cfg.AutoScaler.Enabled,
	}
}

// Start launches the control loop.
func (s *AutoScaler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("autoscaler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	logger.InfoCtx(ctx, "starting autoscaler, interval: %d seconds", s.cfg.AutoScaler.IntervalSec)
	go s.controlLoop(ctx)
	return nil
}

// Stop halts the control loop.
func (s *AutoScaler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("autoscaler is not running")
	}
	close(s.stopCh)
	s.running = false
	logger.Info("autoscaler stopped")
	return nil
}

func (s *AutoScaler) controlLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.AutoScaler.IntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.IsEnabled() {
				continue
			}
			if _, err := s.RunOnce(ctx); err != nil {
				// One bad pass never kills the timer
				logger.ErrorCtx(ctx, "autoscaler run failed: %v", err)
			}
		}
	}
}

// RunOnce executes a single scaling pass and returns the recorded
// decision. Exposed so the command surface can force a check.
func (s *AutoScaler) RunOnce(ctx context.Context) (*model.ScalingDecision, error) {
	acquired, err := s.lock.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "autoscaler lock held by another instance, skipping this run")
		return nil, nil
	}
	defer func() {
		if err := s.lock.Unlock(ctx); err != nil {
			logger.ErrorCtx(ctx, "failed to release distributed lock: %v", err)
		}
	}()

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.mu.Unlock()

	metricsCtx, cancel := s.boundedCtx(ctx)
	m, err := s.metrics.Collect(metricsCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	plan := s.decide(ctx, m)

	now := time.Now()
	if plan.action != model.ActionNoAction &&
		s.history.InCooldown(plan.action, time.Duration(s.cfg.AutoScaler.CooldownSec)*time.Second, now) {
		plan = scalingPlan{action: model.ActionNoAction, reason: cooldownReason}
	}

	if plan.action == model.ActionNoAction {
		decision := &model.ScalingDecision{
			ID:         uuid.NewString(),
			Action:     model.ActionNoAction,
			Reason:     plan.reason,
			ExecutedAt: now,
			Success:    true,
		}
		// No-action passes stay in the ring only; persisting one row per
		// quiet interval would bury the audit trail.
		s.history.Add(decision)
		return decision, nil
	}

	return s.execute(ctx, plan)
}

// decide settles on exactly one action for this pass, in fixed precedence:
// rebalance, scale-up, scale-down, no-action.
func (s *AutoScaler) decide(ctx context.Context, m *model.GlobalMetrics) scalingPlan {
	cfg := s.cfg.AutoScaler

	if m.ActiveTenants > 0 && m.CostEfficiency < cfg.RebalanceThreshold {
		targets := s.rebalanceTargets(ctx)
		if len(targets) > 0 {
			return scalingPlan{
				action:  model.ActionRebalance,
				reason:  fmt.Sprintf("cost efficiency %.2f below threshold %.2f", m.CostEfficiency, cfg.RebalanceThreshold),
				targets: targets,
			}
		}
	}

	if m.ErrorRate > cfg.ScaleUpErrorRate || m.AvgResponseTimeMs > cfg.ScaleUpResponseMs {
		targets := s.scaleUpTargets(ctx)
		if len(targets) > 0 {
			return scalingPlan{
				action:  model.ActionScaleUp,
				reason:  fmt.Sprintf("error rate %.1f%% / response time %.0fms over thresholds", m.ErrorRate, m.AvgResponseTimeMs),
				targets: targets,
			}
		}
	}

	if targets := s.scaleDownTargets(ctx); len(targets) > 0 {
		return scalingPlan{
			action:  model.ActionScaleDown,
			reason:  "dedicated tenants below usage thresholds",
			targets: targets,
		}
	}

	return scalingPlan{action: model.ActionNoAction, reason: "all metrics within thresholds"}
}

// rebalanceTargets asks the cost optimizer for the tenants with the
// largest positive savings, capped at the rebalance batch size.
func (s *AutoScaler) rebalanceTargets(ctx context.Context) []scalingTarget {
	boundedCtx, cancel := s.boundedCtx(ctx)
	defer cancel()

	candidates, err := s.savings.TopSavings(boundedCtx, s.cfg.AutoScaler.RebalanceBatch)
	if err != nil {
		logger.WarnCtx(ctx, "failed to fetch rebalance candidates: %v", err)
		return nil
	}

	targets := make([]scalingTarget, 0, len(candidates))
	for _, c := range candidates {
		if c.EstimatedSavings <= 0 {
			continue
		}
		targets = append(targets, scalingTarget{tenantID: c.TenantID, pool: c.TargetPool})
	}
	return targets
}

// scaleUpTargets selects tenants whose own error rate or response time is
// elevated and promotes each one pool tier, capped at the scale-up batch.
func (s *AutoScaler) scaleUpTargets(ctx context.Context) []scalingTarget {
	boundedCtx, cancel := s.boundedCtx(ctx)
	defer cancel()

	allocations, err := s.allocator.allocations.List(boundedCtx)
	if err != nil {
		logger.WarnCtx(ctx, "failed to list allocations: %v", err)
		return nil
	}

	cfg := s.cfg.AutoScaler
	var targets []scalingTarget
	for _, a := range allocations {
		if a.Pool == model.PoolDedicated {
			continue // nowhere to go
		}
		stats, err := s.usage.GetWindow(boundedCtx, a.TenantID, 1)
		if err != nil {
			continue
		}
		if stats.ErrorRate > cfg.ScaleUpErrorRate || stats.AvgResponseTimeMs > cfg.ScaleUpResponseMs {
			targets = append(targets, scalingTarget{tenantID: a.TenantID, pool: PromotePool(a.Pool)})
			if len(targets) >= cfg.ScaleUpBatch {
				break
			}
		}
	}
	return targets
}

// scaleDownTargets selects dedicated tenants with low volume and fast
// responses, demoting each one tier. Conservative batch cap.
func (s *AutoScaler) scaleDownTargets(ctx context.Context) []scalingTarget {
	boundedCtx, cancel := s.boundedCtx(ctx)
	defer cancel()

	dedicated, err := s.allocator.allocations.ListByPool(boundedCtx, model.PoolDedicated)
	if err != nil {
		logger.WarnCtx(ctx, "failed to list dedicated allocations: %v", err)
		return nil
	}

	cfg := s.cfg.AutoScaler
	var targets []scalingTarget
	for _, a := range dedicated {
		stats, err := s.usage.GetWindow(boundedCtx, a.TenantID, s.cfg.Optimizer.UsageWindowDays)
		if err != nil {
			continue
		}
		if stats.DailyMessageAvg < cfg.ScaleDownMsgsPerDay && stats.AvgResponseTimeMs < cfg.ScaleDownResponseMs {
			targets = append(targets, scalingTarget{tenantID: a.TenantID, pool: DemotePool(a.Pool)})
			if len(targets) >= cfg.ScaleDownBatch {
				break
			}
		}
	}
	return targets
}

// execute reallocates each target tenant. Per-tenant failures are caught
// and reflected in the decision; they never abort the rest of the batch.
func (s *AutoScaler) execute(ctx context.Context, plan scalingPlan) (*model.ScalingDecision, error) {
	decision := &model.ScalingDecision{
		ID:         uuid.NewString(),
		Action:     plan.action,
		Reason:     plan.reason,
		ExecutedAt: time.Now(),
		Success:    true,
	}

	for _, target := range plan.targets {
		decision.AffectedTenants = append(decision.AffectedTenants, target.tenantID)

		old, err := s.allocator.allocations.Get(ctx, target.tenantID)
		oldCost := 0.0
		if err == nil {
			oldCost = old.HourlyCost
		}

		boundedCtx, cancel := s.boundedCtx(ctx)
		newAlloc, err := s.allocator.Reallocate(boundedCtx, target.tenantID, target.pool)
		cancel()
		if err != nil {
			logger.WarnCtx(ctx, "scaling reallocation failed, tenant: %s, pool: %s, err: %v", target.tenantID, target.pool, err)
			decision.Success = false
			continue
		}
		decision.EstimatedCostDelta += newAlloc.HourlyCost - oldCost
	}

	s.history.Add(decision)
	if err := s.decisions.Create(ctx, decision); err != nil {
		logger.WarnCtx(ctx, "failed to persist scaling decision: %v", err)
	}

	logger.InfoCtx(ctx, "scaling decision executed, action: %s, tenants: %d, cost delta: $%.4f/hr, success: %v",
		decision.Action, len(decision.AffectedTenants), decision.EstimatedCostDelta, decision.Success)
	return decision, nil
}

func (s *AutoScaler) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.cfg.AutoScaler.CallTimeoutSec)*time.Second)
}

// History returns recent decisions from the in-memory ring, newest first.
func (s *AutoScaler) History(limit int) []*model.ScalingDecision {
	return s.history.Recent(limit)
}

// Enable turns the loop on.
func (s *AutoScaler) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	logger.Info("autoscaler enabled")
}

// Disable turns the loop off; the ticker keeps running but passes no-op.
func (s *AutoScaler) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	logger.Info("autoscaler disabled")
}

// IsEnabled reports whether scaling passes run.
func (s *AutoScaler) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// IsRunning reports whether the control loop is active.
func (s *AutoScaler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastRunTime returns when the last pass started.
func (s *AutoScaler) LastRunTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunTime
}
