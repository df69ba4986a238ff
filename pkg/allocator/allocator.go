// Package allocator assigns tenants to capacity pools, keeps allocation
// records consistent with worker handles, and runs the autoscaling loop.
package allocator

import (
	"context"
	"fmt"
	"time"

	"chatplane/internal/model"
	"chatplane/pkg/config"
	"chatplane/pkg/logger"
)

// Allocator owns the tenant→allocation mapping. Only the allocator mutates
// allocations; worker handles stay with the supervisor.
type Allocator struct {
	cfg         *config.Config
	workers     WorkerSupervisor
	tenants     TenantDirectory
	allocations AllocationStore
	events      EventPublisher
}

// NewAllocator creates a resource allocator
func NewAllocator(cfg *config.Config, workers WorkerSupervisor, tenants TenantDirectory, allocations AllocationStore, events EventPublisher) *Allocator {
	return &Allocator{
		cfg:         cfg,
		workers:     workers,
		tenants:     tenants,
		allocations: allocations,
		events:      events,
	}
}

// AllocateResources resolves the tenant's effective pool, brings up its
// worker and persists the allocation. An empty overridePool means the pool
// implied by the tenant's subscription tier.
func (a *Allocator) AllocateResources(ctx context.Context, tenantID string, overridePool model.PoolTier) (*model.ResourceAllocation, error) {
	tenant, err := a.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	pool := tenant.Tier.DefaultPool()
	if overridePool != "" {
		if !overridePool.Valid() {
			return nil, fmt.Errorf("unknown pool tier %q", overridePool)
		}
		pool = overridePool
	}

	handle, err := a.workers.Allocate(ctx, tenantID, pool, false)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate worker: %w", err)
	}

	info := handle.Info()
	// A connected worker is reused as-is and keeps the pool it was started
	// with. The allocation record must describe the running worker, not the
	// request; moving pools goes through Reallocate.
	if info.Pool.Valid() && info.Pool != pool {
		logger.WarnCtx(ctx, "requested pool deferred to running worker, tenant: %s, requested: %s, running: %s",
			tenantID, pool, info.Pool)
		pool = info.Pool
	}
	spec := SpecFor(pool)

	allocation := &model.ResourceAllocation{
		TenantID:    tenantID,
		Pool:        pool,
		HourlyCost:  spec.HourlyCost(),
		Limits:      spec.Limits,
		WorkerID:    fmt.Sprintf("%s-%d", tenantID, info.PID),
		AllocatedAt: time.Now().UTC(),
	}

	if err := a.allocations.Upsert(ctx, allocation); err != nil {
		// Worker is up but the record write failed; tear back down so the
		// two stay consistent.
		a.workers.Deallocate(ctx, tenantID)
		return nil, fmt.Errorf("failed to persist allocation: %w", err)
	}

	logger.InfoCtx(ctx, "resources allocated, tenant: %s, pool: %s, hourly: $%.4f", tenantID, pool, allocation.HourlyCost)
	return allocation, nil
}

// DeallocateResources tears the tenant's worker down and removes the
// allocation record. Idempotent.
func (a *Allocator) DeallocateResources(ctx context.Context, tenantID string) error {
	a.workers.Deallocate(ctx, tenantID)

	if err := a.allocations.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}

	logger.InfoCtx(ctx, "resources deallocated, tenant: %s", tenantID)
	return nil
}

// HandleTierChange moves a tenant to a new subscription tier: update the
// tenant record, deallocate, settle, reallocate under the new tier's pool.
func (a *Allocator) HandleTierChange(ctx context.Context, tenantID string, newTier model.SubscriptionTier) error {
	if !newTier.Valid() {
		return fmt.Errorf("unknown subscription tier %q", newTier)
	}

	old, err := a.allocations.Get(ctx, tenantID)
	oldPool := model.PoolTier("")
	if err == nil {
		oldPool = old.Pool
	}

	if err := a.tenants.UpdateTier(ctx, tenantID, newTier); err != nil {
		return fmt.Errorf("failed to update tenant tier: %w", err)
	}

	if err := a.DeallocateResources(ctx, tenantID); err != nil {
		return err
	}

	// Let the old worker's teardown finish releasing its session before a
	// new one claims it.
	time.Sleep(time.Duration(a.cfg.AutoScaler.SettleDelaySec) * time.Second)

	allocation, err := a.AllocateResources(ctx, tenantID, "")
	if err != nil {
		return fmt.Errorf("failed to reallocate after tier change: %w", err)
	}

	a.emitTierChange(ctx, tenantID, oldPool, allocation.Pool, newTier)
	return nil
}

// Reallocate moves a tenant to an explicit pool (scaling actions). Same
// deallocate → settle → allocate sequence as a tier change.
func (a *Allocator) Reallocate(ctx context.Context, tenantID string, pool model.PoolTier) (*model.ResourceAllocation, error) {
	if err := a.DeallocateResources(ctx, tenantID); err != nil {
		return nil, err
	}
	time.Sleep(time.Duration(a.cfg.AutoScaler.SettleDelaySec) * time.Second)
	return a.AllocateResources(ctx, tenantID, pool)
}

func (a *Allocator) emitTierChange(ctx context.Context, tenantID string, oldPool, newPool model.PoolTier, tier model.SubscriptionTier) {
	if a.events == nil {
		return
	}
	_, err := a.events.Publish(ctx, &model.Event{
		Kind:     model.EventSystemNotification,
		TenantID: tenantID,
		Payload: map[string]interface{}{
			"tierChange": string(tier),
			"fromPool":   string(oldPool),
			"toPool":     string(newPool),
		},
	})
	if err != nil {
		logger.WarnCtx(ctx, "failed to emit tier-change event, tenant: %s, err: %v", tenantID, err)
	}
}
